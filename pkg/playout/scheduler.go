package playout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omkarlalla-code/kiosk-project/internal/control"
)

// DefaultLateToleranceMS is how late a show may fire before it is dropped.
const DefaultLateToleranceMS = 100

// fetchTimeout bounds one image download during preload.
const fetchTimeout = 10 * time.Second

// Fetcher downloads an image by URL. Implementations are the host's HTTP
// stack; tests inject fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// preloaded is one fetched image with its renderable deadline.
type preloaded struct {
	data      []byte
	expiresAt int64
}

// Scheduler translates timed control messages into local render actions:
// it learns the clock offset from the first time-bearing message, preloads
// images ahead of their show instant, and fires the crossfade at the
// converted local time.
//
// The session owns the scheduler; ResetSync on session end cancels every
// armed timer and releases every image handle.
type Scheduler struct {
	clock    *Clock
	renderer *Renderer
	fetch    Fetcher
	lateTol  int64

	// OnEndChat, when set, is invoked on an end_chat message.
	OnEndChat func()

	// OnTick, when set, receives the 1 Hz remaining-time broadcast.
	OnTick func(sessionID string, remainingS int64)

	mu       sync.Mutex
	epoch    uint64
	preloads map[string]preloaded
	inflight map[string]struct{}
	pending  map[string]*time.Timer
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithLateTolerance overrides the late-show tolerance in milliseconds.
func WithLateTolerance(ms int64) SchedulerOption {
	return func(s *Scheduler) {
		if ms > 0 {
			s.lateTol = ms
		}
	}
}

// NewScheduler creates a Scheduler rendering through renderer and fetching
// through fetch.
func NewScheduler(clock *Clock, renderer *Renderer, fetch Fetcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock:    clock,
		renderer: renderer,
		fetch:    fetch,
		lateTol:  DefaultLateToleranceMS,
		preloads: make(map[string]preloaded),
		inflight: make(map[string]struct{}),
		pending:  make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HandleMessage dispatches one decoded control message.
func (s *Scheduler) HandleMessage(ctx context.Context, msg control.Message) {
	switch msg.Type {
	case control.TypeImgPreload:
		// Learn the clock offset before the fetch goes out, then download
		// off the read loop: a slow CDN must not delay the control
		// messages queued behind the preload.
		s.clock.Initialise(msg.PlayoutTS)
		go s.preload(context.WithoutCancel(ctx), msg)
	case control.TypeImgShow:
		s.ScheduleShow(msg)
	case control.TypeEndChat:
		if s.OnEndChat != nil {
			s.OnEndChat()
		}
	case control.TypeEndOfStream:
		s.ResetSync()
	case control.TypeSessionTick:
		if s.OnTick != nil {
			s.OnTick(msg.SessionID, msg.RemainingS)
		}
	default:
		slog.Debug("playout: unknown message type ignored", "type", msg.Type)
	}
}

// Preload fetches the image named by msg and stores it until its TTL,
// blocking until the fetch completes. The first time-bearing message
// initialises the clock. Preloads are idempotent per id within a session;
// HandleMessage runs the fetch on its own goroutine.
func (s *Scheduler) Preload(ctx context.Context, msg control.Message) {
	s.clock.Initialise(msg.PlayoutTS)
	s.preload(ctx, msg)
}

// preload performs the fetch-and-store. The epoch captured when the fetch
// goes out discards results that land after a ResetSync.
func (s *Scheduler) preload(ctx context.Context, msg control.Message) {
	s.mu.Lock()
	_, stored := s.preloads[msg.ID]
	_, fetching := s.inflight[msg.ID]
	if stored || fetching {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	s.inflight[msg.ID] = struct{}{}
	s.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	data, err := s.fetch.Fetch(fctx, msg.CDNURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// The session ended while the fetch was out.
		return
	}
	delete(s.inflight, msg.ID)
	if err != nil {
		// A later show on this id falls through to the fallback image.
		slog.Error("playout: preload failed", "id", msg.ID, "url", msg.CDNURL, "err", err)
		return
	}
	s.preloads[msg.ID] = preloaded{
		data:      data,
		expiresAt: s.clock.Now() + msg.TTLMS,
	}
}

// ScheduleShow converts msg.PlayoutTS to local time and either arms a
// timer, renders immediately when slightly late, or drops the show when
// later than the tolerance.
func (s *Scheduler) ScheduleShow(msg control.Message) {
	s.clock.Initialise(msg.PlayoutTS)

	localTS, ok := s.clock.Convert(msg.PlayoutTS)
	if !ok {
		return
	}
	delay := localTS - s.clock.Now()

	switch {
	case delay > 0:
		s.mu.Lock()
		if t, ok := s.pending[msg.ID]; ok {
			t.Stop()
		}
		s.pending[msg.ID] = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
			s.mu.Lock()
			delete(s.pending, msg.ID)
			s.mu.Unlock()
			s.render(msg)
		})
		s.mu.Unlock()
	case delay >= -s.lateTol:
		slog.Warn("playout: late show tolerated", "id", msg.ID, "late_ms", -delay)
		s.render(msg)
	default:
		slog.Warn("playout: show dropped", "id", msg.ID, "late_ms", -delay)
	}
}

// render crossfades the preloaded image into view, or the fallback when the
// preload is missing or expired.
func (s *Scheduler) render(msg control.Message) {
	s.mu.Lock()
	entry, ok := s.preloads[msg.ID]
	if ok && entry.expiresAt <= s.clock.Now() {
		delete(s.preloads, msg.ID)
		ok = false
	}
	s.mu.Unlock()

	data := entry.data
	if !ok {
		slog.Warn("playout: no renderable preload, using fallback", "id", msg.ID)
		data = s.renderer.Fallback()
	}
	s.renderer.Crossfade(data, time.Duration(msg.DurationMS)*time.Millisecond)
}

// ResetSync clears the clock offset, cancels every pending show timer, and
// empties the preload store. Invoked on session end or explicit restart.
func (s *Scheduler) ResetSync() {
	s.mu.Lock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
	s.epoch++
	s.preloads = make(map[string]preloaded)
	s.inflight = make(map[string]struct{})
	s.mu.Unlock()
	s.clock.Reset()
}

// PendingCount reports armed show timers, for lifecycle tests.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
