// Package convo implements the per-turn conversation pipeline: history
// bookkeeping, structured reply parsing, text-to-speech, and timeline
// scheduling against the server clock.
package convo

import (
	"sync"

	"github.com/omkarlalla-code/kiosk-project/pkg/llm"
)

// History holds the in-memory conversation transcript of every session.
// Transcripts are append-only while a session is active and discarded when
// it ends; nothing is persisted across restarts.
type History struct {
	persona string

	mu    sync.Mutex
	turns map[string][]llm.Message
}

// NewHistory creates a History. When persona is non-empty it becomes the
// system turn at the head of every session's transcript.
func NewHistory(persona string) *History {
	return &History{
		persona: persona,
		turns:   make(map[string][]llm.Message),
	}
}

// Snapshot returns a copy of the session's transcript, creating it with the
// persona system turn on first access.
func (h *History) Snapshot(sessionID string) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.get(sessionID)
	out := make([]llm.Message, len(t))
	copy(out, t)
	return out
}

// Append adds turns to the session's transcript.
func (h *History) Append(sessionID string, msgs ...llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[sessionID] = append(h.get(sessionID), msgs...)
}

// Len returns the number of turns in the session's transcript, the persona
// system turn included.
func (h *History) Len(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.turns[sessionID]; ok {
		return len(t)
	}
	return 0
}

// Discard drops the session's transcript. Called when the session ends.
func (h *History) Discard(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, sessionID)
}

// get returns the live transcript slice, initialising it with the persona
// turn. Caller must hold h.mu.
func (h *History) get(sessionID string) []llm.Message {
	t, ok := h.turns[sessionID]
	if !ok {
		if h.persona != "" {
			t = []llm.Message{{Role: llm.RoleSystem, Content: h.persona}}
		}
		h.turns[sessionID] = t
	}
	return t
}
