// Package httpllm provides an HTTP-backed language model adapter speaking
// the POST /chat contract. It implements the llm.Provider interface.
package httpllm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/omkarlalla-code/kiosk-project/pkg/llm"
)

// maxResponseBytes bounds how much of the vendor response body is read.
const maxResponseBytes = 4 << 20

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client, e.g. to inject timeouts or a
// test transport.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements llm.Provider against a /chat HTTP endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New creates a Provider for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("httpllm: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
}

// chatResponse is the expected response envelope. Response is the model's
// raw reply text; it usually contains the structured JSON reply.
type chatResponse struct {
	Response string `json:"response"`
}

// Chat posts the user turn and returns the model's raw reply text.
// The history is not transmitted — the chat service keeps its own context
// keyed by session id.
func (p *Provider) Chat(ctx context.Context, sessionID string, _ []llm.Message, userText string) (string, error) {
	body, err := json.Marshal(chatRequest{
		SessionID: sessionID,
		Message:   userText,
		Stream:    false,
	})
	if err != nil {
		return "", fmt.Errorf("httpllm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("httpllm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("httpllm: chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("httpllm: chat: unexpected status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&cr); err != nil {
		return "", fmt.Errorf("httpllm: decode response: %w", err)
	}
	if cr.Response == "" {
		return "", errors.New("httpllm: chat response has empty response field")
	}
	return cr.Response, nil
}
