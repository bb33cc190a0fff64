package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
)

// ErrAllTiersFailed is returned when every synthesiser tier fails or has an
// open circuit breaker.
var ErrAllTiersFailed = errors.New("all synthesiser tiers failed")

// tierEntry pairs a synthesiser with its dedicated circuit breaker.
type tierEntry struct {
	name    string
	synth   tts.Synthesizer
	breaker *CircuitBreaker
}

// TieredSynthesizer implements [tts.Synthesizer] by trying its tiers in
// declared order until one succeeds. Tiers with an open breaker are skipped
// without waiting out their timeout.
//
// TieredSynthesizer is safe for concurrent use once built.
type TieredSynthesizer struct {
	tiers []tierEntry
	cfg   BreakerConfig
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*TieredSynthesizer)(nil)

// NewTieredSynthesizer creates a TieredSynthesizer with no tiers; register
// them in failover order with [TieredSynthesizer.AddTier]. cfg configures
// the per-tier breakers.
func NewTieredSynthesizer(cfg BreakerConfig) *TieredSynthesizer {
	return &TieredSynthesizer{cfg: cfg}
}

// AddTier appends a synthesiser tier. Tiers are tried in the order added.
func (t *TieredSynthesizer) AddTier(name string, s tts.Synthesizer) {
	cbCfg := t.cfg
	cbCfg.Name = "tts-" + name
	t.tiers = append(t.tiers, tierEntry{
		name:    name,
		synth:   s,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Synthesize tries each tier in order and returns the first success.
// Returns [ErrAllTiersFailed] wrapped with the last error when every tier
// fails.
func (t *TieredSynthesizer) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	var lastErr error
	for i := range t.tiers {
		entry := &t.tiers[i]
		var res tts.Result
		err := entry.breaker.Execute(func() error {
			var innerErr error
			res, innerErr = entry.synth.Synthesize(ctx, text)
			return innerErr
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping synthesiser tier (circuit open)", "tier", entry.name)
		} else {
			slog.Warn("synthesiser tier failed, trying next",
				"tier", entry.name, "error", err)
		}
		if ctx.Err() != nil {
			return tts.Result{}, ctx.Err()
		}
	}
	return tts.Result{}, fmt.Errorf("%w: %v", ErrAllTiersFailed, lastErr)
}
