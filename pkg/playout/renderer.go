package playout

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60 fps animation clock.
const DefaultFrameInterval = 16 * time.Millisecond

// Surface is one render buffer of the two-buffer swap. Implementations are
// the host UI's image layers; tests use in-memory fakes.
type Surface interface {
	// SetImage replaces the surface's content with the given encoded image.
	// Empty data clears the surface.
	SetImage(data []byte)

	// SetOpacity sets the surface opacity in [0, 1].
	SetOpacity(o float64)
}

// Renderer performs timed crossfades between two overlapped surfaces. At
// any instant outside a fade exactly one surface is visible at opacity 1;
// a fade animates the pair inversely and ends with the buffers swapped.
//
// Crossfade blocks for the fade duration. The scheduler invokes it from
// timer callbacks; the internal lock keeps overlapping fades sequential.
type Renderer struct {
	frameInterval time.Duration
	fallback      []byte

	mu      sync.Mutex
	buffers [2]Surface
	front   int
}

// RendererOption configures a [Renderer].
type RendererOption func(*Renderer)

// WithFrameInterval sets the animation frame period. The default is
// [DefaultFrameInterval].
func WithFrameInterval(d time.Duration) RendererOption {
	return func(r *Renderer) {
		if d > 0 {
			r.frameInterval = d
		}
	}
}

// WithFallbackImage sets the image shown when a show targets a missing or
// expired preload.
func WithFallbackImage(data []byte) RendererOption {
	return func(r *Renderer) { r.fallback = data }
}

// NewRenderer creates a Renderer over the two surfaces. front starts
// visible at opacity 1, back hidden at 0.
func NewRenderer(front, back Surface, opts ...RendererOption) *Renderer {
	r := &Renderer{
		frameInterval: DefaultFrameInterval,
		buffers:       [2]Surface{front, back},
	}
	for _, o := range opts {
		o(r)
	}
	r.buffers[0].SetOpacity(1)
	r.buffers[1].SetOpacity(0)
	return r
}

// Fallback returns the configured fallback image, nil when unset.
func (r *Renderer) Fallback() []byte {
	return r.fallback
}

// Crossfade loads data into the hidden buffer and animates the pair over
// duration: front opacity 1 to 0, back 0 to 1. The endpoint state is exact
// regardless of frame timing, and the buffers swap roles on completion.
func (r *Renderer) Crossfade(data []byte, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.buffers[r.front]
	to := r.buffers[1-r.front]
	to.SetImage(data)

	if duration > 0 {
		start := time.Now()
		ticker := time.NewTicker(r.frameInterval)
		for range ticker.C {
			p := float64(time.Since(start)) / float64(duration)
			if p >= 1 {
				break
			}
			from.SetOpacity(1 - p)
			to.SetOpacity(p)
		}
		ticker.Stop()
	}

	from.SetOpacity(0)
	to.SetOpacity(1)
	r.front = 1 - r.front
}
