package resilience

import (
	"context"

	"github.com/omkarlalla-code/kiosk-project/pkg/llm"
)

// GuardedLLM wraps a [llm.Provider] with a circuit breaker so a dead chat
// service fails turns fast instead of holding every request for the full
// LLM timeout.
type GuardedLLM struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertion.
var _ llm.Provider = (*GuardedLLM)(nil)

// NewGuardedLLM wraps provider with a breaker built from cfg.
func NewGuardedLLM(provider llm.Provider, cfg BreakerConfig) *GuardedLLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &GuardedLLM{
		provider: provider,
		breaker:  NewCircuitBreaker(cfg),
	}
}

// Chat forwards to the wrapped provider under the breaker. When the breaker
// is open, [ErrCircuitOpen] is returned immediately.
func (g *GuardedLLM) Chat(ctx context.Context, sessionID string, history []llm.Message, userText string) (string, error) {
	var reply string
	err := g.breaker.Execute(func() error {
		var innerErr error
		reply, innerErr = g.provider.Chat(ctx, sessionID, history, userText)
		return innerErr
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}
