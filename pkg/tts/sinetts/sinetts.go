// Package sinetts provides the last-resort synthesiser tier: a constant
// sine tone in a valid WAV container, sized to the estimated speaking time
// of the text. It never fails, so a fallback chain ending in this tier
// always produces audio.
package sinetts

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
)

const (
	sampleRate = 16_000
	frequency  = 440.0
	amplitude  = 0.2

	// perWord approximates conversational speaking pace (~200 wpm).
	perWord = 300 * time.Millisecond

	minDuration = 1 * time.Second
	maxDuration = 30 * time.Second
)

// TierName identifies this tier in logs and response metadata.
const TierName = "sine-placeholder"

// Synthesizer implements tts.Synthesizer with a generated sine tone.
type Synthesizer struct{}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates the placeholder Synthesizer.
func New() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize returns a sine-tone WAV whose length tracks the word count of
// text. The only error condition is context cancellation.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	if err := ctx.Err(); err != nil {
		return tts.Result{}, err
	}

	d := time.Duration(len(strings.Fields(text))) * perWord
	if d < minDuration {
		d = minDuration
	}
	if d > maxDuration {
		d = maxDuration
	}

	samples := int(d.Seconds() * sampleRate)
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}

	return tts.Result{
		Audio:       wrapWAV(pcm),
		ContentType: tts.ContentTypeWAV,
		Tier:        TierName,
	}, nil
}

// wrapWAV prefixes 16-bit mono PCM with a canonical 44-byte RIFF/WAVE header.
func wrapWAV(pcm []byte) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}
