package tts_test

import (
	"context"
	"testing"
	"time"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts/sinetts"
)

func TestEstimateDuration_WAV(t *testing.T) {
	t.Parallel()

	// The sine tier emits canonical 44-byte-header WAV, so its output is a
	// convenient ground truth: three words clamp to the 1 s minimum.
	res, err := sinetts.New().Synthesize(context.Background(), "hello out there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	got := tts.EstimateDuration(res.Audio, res.ContentType)
	want := time.Second
	if diff := got - want; diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Errorf("duration = %v, want ~%v", got, want)
	}
}

func TestEstimateDuration_MP3Estimate(t *testing.T) {
	t.Parallel()

	// 128 kbps estimate: 16000 bytes per second.
	audio := make([]byte, 32000)
	got := tts.EstimateDuration(audio, tts.ContentTypeMP3)
	if got != 2*time.Second {
		t.Errorf("duration = %v, want 2s at the 128kbps estimate", got)
	}
}

func TestEstimateDuration_Unparseable(t *testing.T) {
	t.Parallel()

	if got := tts.EstimateDuration([]byte("not audio"), tts.ContentTypeWAV); got != 0 {
		t.Errorf("duration = %v, want 0 for junk bytes", got)
	}
	if got := tts.EstimateDuration(nil, tts.ContentTypeMP3); got != 0 {
		t.Errorf("duration = %v, want 0 for empty audio", got)
	}
}
