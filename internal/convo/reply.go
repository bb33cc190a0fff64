package convo

import (
	"encoding/json"
	"strings"

	"github.com/omkarlalla-code/kiosk-project/internal/catalog"
)

// ActionPreloadImage is the only timeline action type the language model may
// emit today.
const ActionPreloadImage = "PRELOAD_IMAGE"

// Action is one planned visual action inside a timeline event.
type Action struct {
	Type    string      `json:"type"`
	Payload catalog.Ref `json:"payload"`
}

// TimelineEvent is a planned action at a millisecond offset from the instant
// speech playback begins on the client.
type TimelineEvent struct {
	TimeOffsetMS int64  `json:"time_offset_ms"`
	Action       Action `json:"action"`
}

// Reply is the parsed language model output. It is a tagged variant: either
// a well-formed structured reply, or a degraded one whose speech is the raw
// model text with no timeline and end_chat false.
type Reply struct {
	SpeechResponse string          `json:"speech_response"`
	TimelineEvents []TimelineEvent `json:"timeline_events"`
	EndChat        bool            `json:"end_chat"`

	// Degraded reports that structured parsing failed and the reply was
	// built from the raw text.
	Degraded bool `json:"-"`
}

// ParseReply parses the raw model output into a [Reply]. Fenced-code
// decoration around the JSON is stripped first, so ```json ... ``` and bare
// JSON parse identically. The parser never guesses on partial structures:
// any failure, including an empty speech_response, yields a degraded reply.
func ParseReply(raw string) Reply {
	body := stripFences(raw)

	var r Reply
	if err := json.Unmarshal([]byte(body), &r); err != nil || r.SpeechResponse == "" {
		return Reply{SpeechResponse: strings.TrimSpace(raw), Degraded: true}
	}

	// Negative offsets would schedule before the speech anchor; clamp them
	// to the anchor instant instead of rejecting the whole reply.
	for i := range r.TimelineEvents {
		if r.TimelineEvents[i].TimeOffsetMS < 0 {
			r.TimelineEvents[i].TimeOffsetMS = 0
		}
	}
	return r
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, plus any outer whitespace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
