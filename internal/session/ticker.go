package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/omkarlalla-code/kiosk-project/internal/control"
	"github.com/omkarlalla-code/kiosk-project/internal/transport"
)

// tickPeriod is the remaining-time broadcast rate.
const tickPeriod = time.Second

// sendTickTimeout bounds one tick broadcast.
const sendTickTimeout = time.Second

// Tick is one remaining-time sample for an active session.
type Tick struct {
	SessionID  string
	RemainingS int64
}

// Broadcaster drives a single shared 1 Hz ticker that computes the clamped
// remaining time of every active session and emits it both on the session's
// datachannel (as a session_tick control message) and to in-process
// subscribers. One central ticker replaces a per-session timer per
// operator view.
type Broadcaster struct {
	reg *Registry

	mu   sync.Mutex
	subs map[chan Tick]struct{}
}

// NewBroadcaster creates a Broadcaster over reg.
func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{
		reg:  reg,
		subs: make(map[chan Tick]struct{}),
	}
}

// Subscribe returns a channel receiving one Tick per active session per
// second, and a cancel function that releases the subscription. Slow
// subscribers miss ticks rather than delaying the broadcast.
func (b *Broadcaster) Subscribe() (<-chan Tick, func()) {
	ch := make(chan Tick, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Run emits ticks at 1 Hz until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.broadcast(ctx, now.UTC())
		}
	}
}

// broadcast emits one round of ticks for all active sessions.
func (b *Broadcaster) broadcast(ctx context.Context, now time.Time) {
	b.reg.mu.RLock()
	active := make([]*Session, 0, len(b.reg.sessions))
	for _, s := range b.reg.sessions {
		if s.Active() {
			active = append(active, s)
		}
	}
	b.reg.mu.RUnlock()

	for _, s := range active {
		tick := Tick{SessionID: s.ID, RemainingS: s.remaining(now)}

		sendCtx, cancel := context.WithTimeout(ctx, sendTickTimeout)
		err := b.reg.router.Send(sendCtx, s.RoomID, control.Message{
			Type:       control.TypeSessionTick,
			SessionID:  tick.SessionID,
			RemainingS: tick.RemainingS,
		})
		cancel()
		if err != nil && !errors.Is(err, transport.ErrRoomGone) {
			slog.Debug("session: tick send failed", "session_id", s.ID, "err", err)
		}

		b.mu.Lock()
		for ch := range b.subs {
			select {
			case ch <- tick:
			default:
			}
		}
		b.mu.Unlock()
	}
}
