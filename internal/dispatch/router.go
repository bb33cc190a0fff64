// Package dispatch implements the datachannel router: reliable, ordered
// broadcast of control messages into a room, either immediately or at a
// server-timeline instant.
//
// The router never rewrites a message's PlayoutTS — that value is the
// server's authoritative timeline and must survive routing unchanged. The
// timers armed by Schedule run off the shared runtime timer heap, not the
// request-handling path, so a slow HTTP request cannot delay a dispatch.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/omkarlalla-code/kiosk-project/internal/control"
	"github.com/omkarlalla-code/kiosk-project/internal/observe"
	"github.com/omkarlalla-code/kiosk-project/internal/transport"
)

// sendTimeout bounds one transport broadcast for a fired schedule.
const sendTimeout = 5 * time.Second

// Router broadcasts control messages into rooms over a RoomTransport.
// Safe for concurrent use.
type Router struct {
	rt      transport.RoomTransport
	now     func() int64 // server-timeline milliseconds
	metrics *observe.Metrics

	mu      sync.Mutex
	nextID  uint64
	pending map[string]map[uint64]*time.Timer // roomID → timer id → timer
}

// Option configures a Router during construction.
type Option func(*Router)

// WithNow overrides the server-timeline clock, for deterministic tests.
func WithNow(now func() int64) Option {
	return func(r *Router) { r.now = now }
}

// WithMetrics enables instrument recording on the router.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router over rt.
func New(rt transport.RoomTransport, opts ...Option) *Router {
	r := &Router{
		rt:      rt,
		now:     func() int64 { return time.Now().UnixMilli() },
		pending: make(map[string]map[uint64]*time.Timer),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Now returns the router's current server-timeline instant in milliseconds.
// The conversation pipeline anchors speech_start_ts on this clock.
func (r *Router) Now() int64 {
	return r.now()
}

// Send encodes msg and broadcasts it to every participant in roomID.
// Returns [transport.ErrRoomGone] when the room no longer exists.
func (r *Router) Send(ctx context.Context, roomID string, msg control.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := r.rt.Send(ctx, roomID, payload); err != nil {
		if errors.Is(err, transport.ErrRoomGone) {
			return transport.ErrRoomGone
		}
		return err
	}
	return nil
}

// Schedule arms a timer that broadcasts msg into roomID at the
// server-timeline instant atTS. When atTS is not in the future the message
// is sent immediately. A room that is gone by the time the timer fires is a
// debug-level event, not an error: scheduled messages may legitimately
// outlive their session.
func (r *Router) Schedule(roomID string, msg control.Message, atTS int64) {
	delay := time.Duration(atTS-r.now()) * time.Millisecond
	if delay <= 0 {
		r.fire(roomID, msg)
		return
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	room, ok := r.pending[roomID]
	if !ok {
		room = make(map[uint64]*time.Timer)
		r.pending[roomID] = room
	}
	timer := time.AfterFunc(delay, func() {
		r.unregister(roomID, id)
		r.fire(roomID, msg)
	})
	room[id] = timer
	r.mu.Unlock()
}

// fire performs the actual broadcast for an immediate or elapsed schedule.
func (r *Router) fire(roomID string, msg control.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := r.Send(ctx, roomID, msg); err != nil {
		if errors.Is(err, transport.ErrRoomGone) {
			slog.Debug("dispatch: dropping scheduled message for gone room",
				"room", roomID, "type", msg.Type)
			if r.metrics != nil {
				r.metrics.DroppedMessages.Add(ctx, 1)
			}
			return
		}
		slog.Warn("dispatch: scheduled send failed",
			"room", roomID, "type", msg.Type, "err", err)
	}
}

// unregister removes a fired timer from the pending set.
func (r *Router) unregister(roomID string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.pending[roomID]
	if !ok {
		return
	}
	delete(room, id)
	if len(room) == 0 {
		delete(r.pending, roomID)
	}
}

// CancelRoom stops every pending schedule for roomID. Called by the session
// registry when the session owning the room ends, so no timers survive the
// session.
func (r *Router) CancelRoom(roomID string) {
	r.mu.Lock()
	room := r.pending[roomID]
	delete(r.pending, roomID)
	r.mu.Unlock()

	for _, timer := range room {
		timer.Stop()
	}
}

// PendingCount returns the number of armed schedules for roomID. Used by
// lifecycle tests to prove timer release on session end.
func (r *Router) PendingCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[roomID])
}
