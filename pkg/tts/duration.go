package tts

import (
	"encoding/binary"
	"time"
)

// mp3EstimateBitrate is the bitrate assumed when estimating MP3 playback
// duration. Vendor endpoints serve constant-bitrate 128 kbps streams.
const mp3EstimateBitrate = 128_000

// wavHeaderSize is the canonical RIFF/WAVE header length produced by the
// synthesiser tiers.
const wavHeaderSize = 44

// EstimateDuration returns the nominal playback duration of an audio
// artifact. WAV durations are exact (computed from the header's byte rate);
// MP3 durations are a constant-bitrate estimate. Unparseable input yields
// zero, which callers treat as "no end-of-speech anchor available".
func EstimateDuration(audio []byte, contentType string) time.Duration {
	switch contentType {
	case ContentTypeWAV:
		return wavDuration(audio)
	case ContentTypeMP3:
		return time.Duration(len(audio)) * 8 * time.Second / mp3EstimateBitrate
	default:
		return 0
	}
}

// wavDuration reads the byte rate from a RIFF/WAVE header and divides the
// data length by it.
func wavDuration(audio []byte) time.Duration {
	if len(audio) < wavHeaderSize {
		return 0
	}
	if string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(audio[28:32])
	if byteRate == 0 {
		return 0
	}
	dataLen := len(audio) - wavHeaderSize
	return time.Duration(dataLen) * time.Second / time.Duration(byteRate)
}
