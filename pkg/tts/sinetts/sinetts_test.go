package sinetts

import (
	"context"
	"testing"
	"time"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
)

func TestSynthesize_ValidWAV(t *testing.T) {
	t.Parallel()

	res, err := New().Synthesize(context.Background(), "tell me about the parthenon please")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.ContentType != tts.ContentTypeWAV {
		t.Errorf("content type = %q, want %q", res.ContentType, tts.ContentTypeWAV)
	}
	if res.Tier != TierName {
		t.Errorf("tier = %q, want %q", res.Tier, TierName)
	}
	if len(res.Audio) <= 44 {
		t.Fatalf("audio too short: %d bytes", len(res.Audio))
	}
	if string(res.Audio[0:4]) != "RIFF" || string(res.Audio[8:12]) != "WAVE" {
		t.Error("output is not a RIFF/WAVE container")
	}

	// Six words at 300 ms each.
	want := 1800 * time.Millisecond
	got := tts.EstimateDuration(res.Audio, res.ContentType)
	if diff := got - want; diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Errorf("duration = %v, want ~%v", got, want)
	}
}

func TestSynthesize_DurationClamped(t *testing.T) {
	t.Parallel()

	short, _ := New().Synthesize(context.Background(), "hi")
	if d := tts.EstimateDuration(short.Audio, short.ContentType); d < time.Second {
		t.Errorf("short text duration = %v, want >= 1s", d)
	}

	long := ""
	for i := 0; i < 200; i++ {
		long += "word "
	}
	res, _ := New().Synthesize(context.Background(), long)
	if d := tts.EstimateDuration(res.Audio, res.ContentType); d > 30*time.Second+time.Millisecond {
		t.Errorf("long text duration = %v, want <= 30s", d)
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	t.Parallel()

	a, _ := New().Synthesize(context.Background(), "same text")
	b, _ := New().Synthesize(context.Background(), "same text")
	if len(a.Audio) != len(b.Audio) {
		t.Fatal("identical text produced different audio lengths")
	}
	for i := range a.Audio {
		if a.Audio[i] != b.Audio[i] {
			t.Fatalf("audio differs at byte %d", i)
		}
	}
}

func TestSynthesize_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Synthesize(ctx, "hello"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
