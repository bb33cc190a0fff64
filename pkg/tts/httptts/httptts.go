// Package httptts provides an HTTP-backed synthesiser tier speaking the
// POST /synthesize contract. Both cloud voices and a coqui-style local
// server are driven through this client; only the base URL differs.
package httptts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
)

// maxAudioBytes bounds how much audio is read from the vendor response.
const maxAudioBytes = 32 << 20

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithHTTPClient overrides the HTTP client, e.g. to inject a test transport.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.httpClient = c }
}

// Synthesizer implements tts.Synthesizer against a /synthesize HTTP endpoint.
type Synthesizer struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates a Synthesizer tier named name for the service rooted at
// baseURL. The name is carried into tts.Result.Tier.
func New(name, baseURL string, opts ...Option) (*Synthesizer, error) {
	if name == "" {
		return nil, errors.New("httptts: name must not be empty")
	}
	if baseURL == "" {
		return nil, errors.New("httptts: baseURL must not be empty")
	}
	s := &Synthesizer{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// synthRequest is the JSON body for POST /synthesize.
type synthRequest struct {
	Text string `json:"text"`
}

// Synthesize posts text and returns the raw audio bytes from the response
// body. The response Content-Type must be audio/mpeg or audio/wav.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	body, err := json.Marshal(synthRequest{Text: text})
	if err != nil {
		return tts.Result{}, fmt.Errorf("httptts: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return tts.Result{}, fmt.Errorf("httptts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tts.Result{}, fmt.Errorf("httptts: synthesize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Result{}, fmt.Errorf("httptts: synthesize: unexpected status %d", resp.StatusCode)
	}

	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (ct != tts.ContentTypeMP3 && ct != tts.ContentTypeWAV) {
		return tts.Result{}, fmt.Errorf("httptts: synthesize: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return tts.Result{}, fmt.Errorf("httptts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return tts.Result{}, errors.New("httptts: synthesize returned empty audio")
	}

	return tts.Result{Audio: audio, ContentType: ct, Tier: s.name}, nil
}
