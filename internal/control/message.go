// Package control defines the JSON control messages broadcast to kiosk
// clients over the room datachannel.
//
// Every time-bearing message carries PlayoutTS in server-timeline
// milliseconds. The client learns a clock offset from the first such value
// and converts all later ones; the server never rewrites PlayoutTS after a
// message has been scheduled.
package control

import (
	"encoding/json"
	"fmt"
)

// Type tags a control message on the wire.
type Type string

const (
	// TypeImgPreload instructs the client to fetch an image ahead of its
	// show time.
	TypeImgPreload Type = "img_preload"

	// TypeImgShow instructs the client to crossfade an already-preloaded
	// image into view at PlayoutTS.
	TypeImgShow Type = "img_show"

	// TypeEndChat marks the end of the conversation; sent when the language
	// model sets its end-of-chat bit.
	TypeEndChat Type = "end_chat"

	// TypeEndOfStream marks the end of the session. Clients reset their
	// playout scheduler on receipt.
	TypeEndOfStream Type = "end_of_stream"

	// TypeSessionTick carries the 1 Hz remaining-time broadcast for the
	// operator surface.
	TypeSessionTick Type = "session_tick"
)

// Message is the envelope written to the datachannel. Exactly the fields
// required by the message's Type are populated; the rest are omitted.
type Message struct {
	Type Type `json:"type"`

	// ID is the image identifier for img_preload and img_show.
	ID string `json:"id,omitempty"`

	// CDNURL is the image location for img_preload.
	CDNURL string `json:"cdn_url,omitempty"`

	// PlayoutTS is the server-timeline millisecond instant at which the
	// message takes effect. Zero for untimed messages.
	PlayoutTS int64 `json:"playout_ts,omitempty"`

	// TTLMS is how long a preloaded image stays renderable, for img_preload.
	TTLMS int64 `json:"ttl_ms,omitempty"`

	// Transition names the visual transition for img_show ("crossfade").
	Transition string `json:"transition,omitempty"`

	// DurationMS is the crossfade duration for img_show.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// Caption is the optional display caption for img_show.
	Caption string `json:"caption,omitempty"`

	// SessionID identifies the session for end_of_stream and session_tick.
	SessionID string `json:"session_id,omitempty"`

	// RemainingS is the clamped remaining session time for session_tick.
	RemainingS int64 `json:"remaining_s,omitempty"`
}

// Encode serialises m as UTF-8 JSON for the datachannel.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("control: encode %s message: %w", m.Type, err)
	}
	return b, nil
}

// Decode parses a datachannel payload into a [Message].
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("control: decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("control: message has no type tag")
	}
	return m, nil
}

// Timed reports whether messages of this type carry a meaningful PlayoutTS.
func (t Type) Timed() bool {
	return t == TypeImgPreload || t == TypeImgShow || t == TypeEndChat
}
