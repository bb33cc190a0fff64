package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/omkarlalla-code/kiosk-project/internal/catalog"
	"github.com/omkarlalla-code/kiosk-project/internal/convo"
	"github.com/omkarlalla-code/kiosk-project/internal/dispatch"
	"github.com/omkarlalla-code/kiosk-project/internal/health"
	"github.com/omkarlalla-code/kiosk-project/internal/session"
	transportmock "github.com/omkarlalla-code/kiosk-project/internal/transport/mock"
	"github.com/omkarlalla-code/kiosk-project/pkg/llm"
	llmmock "github.com/omkarlalla-code/kiosk-project/pkg/llm/mock"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts"
	ttsmock "github.com/omkarlalla-code/kiosk-project/pkg/tts/mock"
)

const testCatalogue = `
collections:
  monuments:
    - id: parthenon
      title: "The Parthenon"
      cdn_url: "https://cdn.example.com/parthenon.jpg"
      keywords: [parthenon, acropolis]
`

const cannedReply = `{"speech_response": "Hello from the museum.", "timeline_events": [], "end_chat": false}`

type fixture struct {
	srv      *httptest.Server
	registry *session.Registry
	provider *llmmock.Provider
	catPath  string
	cat      *catalog.Catalogue
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	catPath := filepath.Join(t.TempDir(), "catalogue.yaml")
	if err := os.WriteFile(catPath, []byte(testCatalogue), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Open(catPath)
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}

	mt := &transportmock.Transport{}
	router := dispatch.New(mt)
	registry := session.NewRegistry(session.Config{
		IdleTimeout:   time.Hour,
		Duration:      time.Hour,
		SweepInterval: time.Hour,
	}, mt, router)
	t.Cleanup(func() { registry.EndAll(session.EndShutdown) })

	provider := &llmmock.Provider{Response: cannedReply}
	synth := &ttsmock.Synthesizer{Result: tts.Result{Audio: []byte("audio"), ContentType: tts.ContentTypeWAV, Tier: "primary"}}
	history := convo.NewHistory("guide")
	pipeline := convo.New(convo.Config{
		AnchorLeadMS:    1000,
		PreloadLeadMS:   1500,
		ShowCrossfadeMS: 400,
		PreloadTTLMS:    60_000,
		LLMTimeout:      time.Second,
		TTSTimeout:      time.Second,
	}, registry, provider, synth, catalog.NewResolver(cat, catalog.WithRandSource(rand.NewSource(1))), router, history, nil)
	registry.OnEnd(func(id string, _ session.EndReason) { pipeline.Discard(id) })

	hh := health.New(health.CatalogueChecker(cat.Len))

	server := New(registry, pipeline, cat, hh, nil, opts...)
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, registry: registry, provider: provider, catPath: catPath, cat: cat}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (f *fixture) startSession(t *testing.T) string {
	t.Helper()
	resp, body := f.post(t, "/start_session", `{"kiosk_id": "kiosk-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start_session status = %d: %v", resp.StatusCode, body)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatal("start_session returned no session_id")
	}
	return id
}

func TestStartSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithLiveKitURL("wss://lk.example.com"))

	resp, body := f.post(t, "/start_session", `{"kiosk_id": "kiosk-lobby"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, field := range []string{"session_id", "token", "livekit_url", "room_name"} {
		if v, _ := body[field].(string); v == "" {
			t.Errorf("response missing %s: %v", field, body)
		}
	}
	if body["livekit_url"] != "wss://lk.example.com" {
		t.Errorf("livekit_url = %v", body["livekit_url"])
	}
	if body["duration_seconds"].(float64) != 3600 {
		t.Errorf("duration_seconds = %v, want 3600", body["duration_seconds"])
	}
}

func TestStartSession_Rejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, body := f.post(t, "/start_session", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing kiosk_id status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "missing_field" {
		t.Errorf("error = %v", body["error"])
	}

	resp, body = f.post(t, "/start_session", `{"kiosk`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "bad_request" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestConverse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.startSession(t)

	resp, body := f.post(t, "/converse", `{"session_id": "`+id+`", "message": "hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["assistant_response"] != "Hello from the museum." {
		t.Errorf("assistant_response = %v", body["assistant_response"])
	}
	if v, _ := body["audio_base64"].(string); v == "" {
		t.Error("missing audio_base64")
	}
	if body["end_chat"] != false {
		t.Errorf("end_chat = %v", body["end_chat"])
	}
	if _, present := body["tts_error"]; present {
		t.Error("tts_error should be omitted on clean turns")
	}
}

func TestConverse_ErrorMapping(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.startSession(t)

	resp, body := f.post(t, "/converse", `{"session_id": "`+id+`"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing message status = %d, want 400", resp.StatusCode)
	}

	resp, body = f.post(t, "/converse", `{"session_id": "unknown", "message": "hi"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}
	if body["error"] != "session_not_found" {
		t.Errorf("error = %v", body["error"])
	}

	f.provider.Err = errors.New("model unreachable")
	resp, body = f.post(t, "/converse", `{"session_id": "`+id+`", "message": "hi"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("llm failure status = %d, want 502", resp.StatusCode)
	}
	if body["error"] != "upstream_llm" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestConverse_SurvivesClientDisconnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.startSession(t)

	started := make(chan struct{})
	ctxErr := make(chan error, 1)
	f.provider.ChatFunc = func(ctx context.Context, _ string, _ []llm.Message, _ string) (string, error) {
		close(started)
		time.Sleep(50 * time.Millisecond) // the kiosk drops the connection in here
		ctxErr <- ctx.Err()
		return cannedReply, nil
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, f.srv.URL+"/converse",
		strings.NewReader(`{"session_id": "`+id+`", "message": "hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	go func() {
		<-started
		cancel()
	}()
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
	}

	// The model call runs to completion on an uncancelled context.
	select {
	case err := <-ctxErr:
		if err != nil {
			t.Fatalf("turn context cancelled by client disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("model call never completed")
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.startSession(t)

	resp, err := http.Get(f.srv.URL + "/session/" + id)
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session status = %d", resp.StatusCode)
	}
	if body["state"] != "active" || body["kiosk_id"] != "kiosk-1" {
		t.Errorf("snapshot = %v", body)
	}

	resp, body = f.post(t, "/session/"+id+"/keepalive", "")
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Errorf("keepalive = %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/session/"+id+"?reason=operator", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body = decode(t, resp)
	if resp.StatusCode != http.StatusOK || body["ended"] != true {
		t.Fatalf("delete = %d %v", resp.StatusCode, body)
	}

	snap, err := f.registry.Lookup(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.EndReason != session.EndOperator {
		t.Errorf("end reason = %s, want operator_terminated", snap.EndReason)
	}

	// Keepalive against the ended session is a 404.
	resp, _ = f.post(t, "/session/"+id+"/keepalive", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("keepalive after end status = %d, want 404", resp.StatusCode)
	}
}

func TestGetSession_Unknown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/session/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthSummary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.startSession(t)

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["active_sessions"].(float64) != 1 || body["total_sessions"].(float64) != 1 {
		t.Errorf("counts = %v/%v, want 1/1", body["active_sessions"], body["total_sessions"])
	}
}

func TestHealthzAndReadyz(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestReloadCatalogue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	bigger := testCatalogue + `    - id: colosseum
      title: "The Colosseum"
      cdn_url: "https://cdn.example.com/colosseum.jpg"
`
	if err := os.WriteFile(f.catPath, []byte(bigger), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, body := f.post(t, "/admin/reload_catalogue", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["entries"].(float64) != 2 {
		t.Errorf("entries = %v, want 2", body["entries"])
	}
	if f.cat.Len() != 2 {
		t.Errorf("catalogue len = %d, want 2", f.cat.Len())
	}

	// A broken file fails the reload and keeps the old generation.
	if err := os.WriteFile(f.catPath, []byte("not: [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, _ = f.post(t, "/admin/reload_catalogue", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("broken reload status = %d, want 500", resp.StatusCode)
	}
	if f.cat.Len() != 2 {
		t.Errorf("catalogue len after failed reload = %d, want 2", f.cat.Len())
	}
}

func TestConverseRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, WithConverseRateLimit(3))
	id := f.startSession(t)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Post(f.srv.URL+"/converse", "application/json",
			strings.NewReader(`{"session_id": "`+id+`", "message": "hi"}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expected a 429 after exhausting the per-minute budget")
	}

	// The budget binds /converse only.
	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200 despite converse limiting", resp.StatusCode)
	}
}
