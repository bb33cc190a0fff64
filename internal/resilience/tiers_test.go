package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
	ttsmock "github.com/omkarlalla-code/kiosk-project/pkg/tts/mock"
)

func TestTieredSynthesizer_FirstTierWins(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Synthesizer{Result: tts.Result{Tier: "primary", Audio: []byte("primary audio")}}
	secondary := &ttsmock.Synthesizer{Result: tts.Result{Tier: "secondary", Audio: []byte("secondary audio")}}

	ts := NewTieredSynthesizer(BreakerConfig{})
	ts.AddTier("primary", primary)
	ts.AddTier("secondary", secondary)

	res, err := ts.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Audio) != "primary audio" {
		t.Errorf("audio = %q, want primary tier output", res.Audio)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary invoked %d times, want 0", secondary.Calls())
	}
}

func TestTieredSynthesizer_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Synthesizer{Err: errors.New("primary down")}
	secondary := &ttsmock.Synthesizer{Result: tts.Result{Tier: "secondary", Audio: []byte("fallback audio")}}

	ts := NewTieredSynthesizer(BreakerConfig{})
	ts.AddTier("primary", primary)
	ts.AddTier("secondary", secondary)

	res, err := ts.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Audio) != "fallback audio" {
		t.Errorf("audio = %q, want secondary tier output", res.Audio)
	}
	if primary.Calls() != 1 {
		t.Errorf("primary invoked %d times, want 1", primary.Calls())
	}
}

func TestTieredSynthesizer_AllTiersFailed(t *testing.T) {
	t.Parallel()

	ts := NewTieredSynthesizer(BreakerConfig{})
	ts.AddTier("only", &ttsmock.Synthesizer{Err: errors.New("down")})

	_, err := ts.Synthesize(context.Background(), "hello")
	if !errors.Is(err, ErrAllTiersFailed) {
		t.Fatalf("err = %v, want ErrAllTiersFailed", err)
	}
}

func TestTieredSynthesizer_OpenBreakerSkipsTier(t *testing.T) {
	t.Parallel()

	failing := &ttsmock.Synthesizer{Err: errors.New("down")}
	healthy := &ttsmock.Synthesizer{Result: tts.Result{Tier: "backup", Audio: []byte("ok")}}

	ts := NewTieredSynthesizer(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	ts.AddTier("flaky", failing)
	ts.AddTier("backup", healthy)

	// Two failures open the flaky tier's breaker.
	for i := 0; i < 3; i++ {
		if _, err := ts.Synthesize(context.Background(), "hello"); err != nil {
			t.Fatalf("turn %d: unexpected error: %v", i, err)
		}
	}

	// The third call must not have touched the flaky synthesiser.
	if got := failing.Calls(); got != 2 {
		t.Errorf("flaky tier invoked %d times, want 2 (breaker open afterwards)", got)
	}
	if got := healthy.Calls(); got != 3 {
		t.Errorf("backup tier invoked %d times, want 3", got)
	}
}

func TestTieredSynthesizer_ContextCancelStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	first := &ttsmock.Synthesizer{SynthFunc: func(context.Context, string) (tts.Result, error) {
		cancel()
		return tts.Result{}, errors.New("down")
	}}
	second := &ttsmock.Synthesizer{Result: tts.Result{Audio: []byte("never")}}

	ts := NewTieredSynthesizer(BreakerConfig{})
	ts.AddTier("first", first)
	ts.AddTier("second", second)

	_, err := ts.Synthesize(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if second.Calls() != 0 {
		t.Errorf("second tier invoked after cancellation")
	}
}
