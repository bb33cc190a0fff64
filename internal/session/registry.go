package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omkarlalla-code/kiosk-project/internal/control"
	"github.com/omkarlalla-code/kiosk-project/internal/dispatch"
	"github.com/omkarlalla-code/kiosk-project/internal/transport"
)

// ErrNotFound is returned by lookups for unknown or deleted sessions.
var ErrNotFound = errors.New("session not found")

// deleteGrace is how long an ended session stays visible before the sweep
// removes it.
const deleteGrace = time.Hour

// roomDeleteTimeout bounds the best-effort transport room deletion on end.
const roomDeleteTimeout = 5 * time.Second

// Config holds the registry's timing knobs.
type Config struct {
	// IdleTimeout ends a session after this much inactivity.
	IdleTimeout time.Duration

	// Duration is the hard session length from creation.
	Duration time.Duration

	// SweepInterval is the period of the ended-session sweep.
	SweepInterval time.Duration
}

// Registry owns every session in the process. Operations on one session
// serialise on that session's lock; operations on different sessions are
// independent. The registry-level lock only guards the id map.
type Registry struct {
	cfg    Config
	rt     transport.RoomTransport
	router *dispatch.Router

	mu       sync.RWMutex
	sessions map[string]*Session

	// onEnd callbacks run after a session transitions to ended, outside the
	// session lock. The conversation pipeline registers history cleanup here.
	cbMu  sync.Mutex
	onEnd []func(sessionID string, reason EndReason)
}

// NewRegistry creates a Registry using rt for room lifecycle and router for
// cancelling pending schedules and emitting end_of_stream.
func NewRegistry(cfg Config, rt transport.RoomTransport, router *dispatch.Router) *Registry {
	return &Registry{
		cfg:      cfg,
		rt:       rt,
		router:   router,
		sessions: make(map[string]*Session),
	}
}

// OnEnd registers a callback invoked whenever a session ends, with the
// session id and end reason. Callbacks run outside any lock.
func (r *Registry) OnEnd(fn func(sessionID string, reason EndReason)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.onEnd = append(r.onEnd, fn)
}

// Created is the result of a successful Create.
type Created struct {
	SessionID string
	RoomID    string
	Access    transport.Access
	DurationS int64
}

// Create mints a new active session for kioskID: a fresh id and room, a
// capability token, and armed idle and hard-duration timers. The timers run
// on the runtime timer heap, independent of the request-handling path.
func (r *Registry) Create(kioskID string) (Created, error) {
	if kioskID == "" {
		return Created{}, fmt.Errorf("session: kiosk id must not be empty")
	}

	id := uuid.NewString()
	roomID := "kiosk-" + id[:8]

	access, err := r.rt.MintAccess(roomID, kioskID)
	if err != nil {
		return Created{}, fmt.Errorf("session: mint access for room %q: %w", roomID, err)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		KioskID:   kioskID,
		RoomID:    roomID,
		CreatedAt: now,
		DurationS: int64(r.cfg.Duration.Seconds()),

		state:        StateActive,
		lastActivity: now,
	}
	s.idleTimer = time.AfterFunc(r.cfg.IdleTimeout, func() {
		r.End(s.ID, EndTimeout)
	})
	s.durationTimer = time.AfterFunc(r.cfg.Duration, func() {
		r.End(s.ID, EndDuration)
	})

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	slog.Info("session created",
		"session_id", id,
		"kiosk_id", kioskID,
		"room", roomID,
		"duration_s", s.DurationS,
	)

	return Created{
		SessionID: id,
		RoomID:    roomID,
		Access:    access,
		DurationS: s.DurationS,
	}, nil
}

// get returns the live session for id.
func (r *Registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Lookup returns a snapshot of the session, ended or not.
func (r *Registry) Lookup(id string) (Snapshot, error) {
	s, ok := r.get(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.snapshot(), nil
}

// Refresh resets the inactivity timer. A no-op for ended or unknown
// sessions.
func (r *Registry) Refresh(id string) {
	s, ok := r.get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}
	s.lastActivity = time.Now().UTC()
	s.idleTimer.Reset(r.cfg.IdleTimeout)
}

// Active reports whether id names an active session.
func (r *Registry) Active(id string) bool {
	s, ok := r.get(id)
	return ok && s.Active()
}

// End transitions the session to ended with the given reason. Idempotent:
// only the first call wins; later calls (including racing timers) return
// nil without effect. Ending a session stops its timers, cancels every
// pending datachannel schedule for its room, emits end_of_stream, and
// releases the transport room best-effort.
func (r *Registry) End(id string, reason EndReason) error {
	s, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}
	s.state = StateEnded
	s.endReason = reason
	s.endedAt = time.Now().UTC()
	s.idleTimer.Stop()
	s.durationTimer.Stop()
	s.idleTimer = nil
	s.durationTimer = nil
	roomID := s.RoomID
	s.mu.Unlock()

	r.router.CancelRoom(roomID)

	ctx, cancel := context.WithTimeout(context.Background(), roomDeleteTimeout)
	defer cancel()

	// end_of_stream tells clients to reset their playout scheduler before
	// the room disappears.
	if err := r.router.Send(ctx, roomID, control.Message{
		Type:      control.TypeEndOfStream,
		SessionID: id,
	}); err != nil && !errors.Is(err, transport.ErrRoomGone) {
		slog.Debug("session: end_of_stream send failed", "session_id", id, "err", err)
	}

	// Room deletion is best-effort: a transport failure never blocks the
	// state transition.
	if err := r.rt.DeleteRoom(ctx, roomID); err != nil {
		slog.Warn("session: room deletion failed",
			"session_id", id, "room", roomID, "err", err)
	}

	slog.Info("session ended", "session_id", id, "reason", reason)

	r.cbMu.Lock()
	cbs := make([]func(string, EndReason), len(r.onEnd))
	copy(cbs, r.onEnd)
	r.cbMu.Unlock()
	for _, fn := range cbs {
		fn(id, reason)
	}

	return nil
}

// EndAll ends every active session with the given reason. Used on server
// shutdown.
func (r *Registry) EndAll(reason EndReason) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.End(id, reason)
	}
}

// Counts returns (active, total) session counts for the health surface.
func (r *Registry) Counts() (active, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Active() {
			active++
		}
	}
	return active, len(r.sessions)
}

// RoomOf returns the room id for an active session.
func (r *Registry) RoomOf(id string) (string, error) {
	s, ok := r.get(id)
	if !ok || !s.Active() {
		return "", ErrNotFound
	}
	return s.RoomID, nil
}

// RunSweeper deletes ended sessions whose endedAt is older than the grace
// period, at the configured sweep interval, until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now().UTC())
		}
	}
}

// sweep removes ended sessions past the grace period.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.mu.Lock()
		expired := s.state == StateEnded && now.Sub(s.endedAt) >= deleteGrace
		s.mu.Unlock()
		if expired {
			delete(r.sessions, id)
			slog.Debug("session swept", "session_id", id)
		}
	}
}
