// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled raw replies without a live
// chat backend and to inspect what the pipeline sent.
//
// Example:
//
//	p := &mock.Provider{Response: `{"speech_response":"Hi","timeline_events":[],"end_chat":false}`}
//	raw, err := p.Chat(ctx, "s1", nil, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/omkarlalla-code/kiosk-project/pkg/llm"
)

// ChatCall records a single invocation of Chat.
type ChatCall struct {
	// SessionID is the session id passed to Chat.
	SessionID string

	// History is the conversation history passed to Chat.
	History []llm.Message

	// UserText is the user turn passed to Chat.
	UserText string
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause Chat to return an empty string and nil error.
type Provider struct {
	mu sync.Mutex

	// Response is the raw reply text returned by Chat.
	Response string

	// Err, if non-nil, is returned from Chat instead of Response.
	Err error

	// ChatFunc, if non-nil, replaces the canned Response/Err behaviour.
	ChatFunc func(ctx context.Context, sessionID string, history []llm.Message, userText string) (string, error)

	// Calls records every Chat invocation in order.
	Calls []ChatCall
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Chat records the call and returns the configured response.
func (p *Provider) Chat(ctx context.Context, sessionID string, history []llm.Message, userText string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, ChatCall{SessionID: sessionID, History: history, UserText: userText})
	fn := p.ChatFunc
	resp, err := p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, sessionID, history, userText)
	}
	return resp, err
}

// CallCount returns the number of recorded Chat invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
