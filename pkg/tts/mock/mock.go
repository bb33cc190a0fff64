// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer in unit tests to return canned audio and count synth
// invocations. The atomic call counter makes it safe to assert on from
// concurrent callers.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
)

// Synthesizer is a mock implementation of tts.Synthesizer.
// Zero value returns an empty WAV result and nil error.
type Synthesizer struct {
	mu sync.Mutex

	// Result is returned from Synthesize when Err and SynthFunc are unset.
	Result tts.Result

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// SynthFunc, if non-nil, replaces the canned behaviour. The call counter
	// is still incremented.
	SynthFunc func(ctx context.Context, text string) (tts.Result, error)

	// Texts records the text of every invocation in order.
	Texts []string

	calls atomic.Int64
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call and returns the configured result.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.Texts = append(s.Texts, text)
	fn := s.SynthFunc
	res, err := s.Result, s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return tts.Result{}, err
	}
	if res.ContentType == "" {
		res.ContentType = tts.ContentTypeWAV
	}
	return res, nil
}

// Calls returns the number of Synthesize invocations. Safe to read while
// concurrent calls are in flight.
func (s *Synthesizer) Calls() int64 {
	return s.calls.Load()
}
