// Package llm defines the language model adapter used by the conversation
// pipeline, together with its message types.
package llm

import "context"

// Role identifies the author of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a raw text reply for one user turn. The reply is
// expected — but not guaranteed — to be a JSON document with the structured
// reply fields; parsing and degradation are the caller's concern.
//
// Implementations must respect ctx cancellation and deadlines.
type Provider interface {
	Chat(ctx context.Context, sessionID string, history []Message, userText string) (string, error)
}
