// Package tts defines the text-to-speech synthesiser contract shared by the
// cloud tiers, the sine placeholder, and the audio cache.
package tts

import "context"

// Content types produced by synthesiser tiers. The cache treats audio as
// opaque bytes; the content type only matters for playout-duration
// estimation and the HTTP response.
const (
	ContentTypeMP3 = "audio/mpeg"
	ContentTypeWAV = "audio/wav"
)

// Result is one complete synthesised audio artifact.
type Result struct {
	// Audio is the complete encoded audio. Never a stream: the client needs
	// a well-defined playback start instant.
	Audio []byte

	// ContentType is audio/mpeg or audio/wav.
	ContentType string

	// Tier names the synthesiser tier that served the request. Recorded for
	// observability only.
	Tier string
}

// Synthesizer produces a complete audio artifact for the given text.
//
// Implementations must respect ctx cancellation and deadlines and must be
// safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Result, error)
}
