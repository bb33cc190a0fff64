package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omkarlalla-code/kiosk-project/internal/convo"
	"github.com/omkarlalla-code/kiosk-project/internal/session"
)

// maxBodyBytes bounds inbound JSON bodies. Utterances are short; anything
// bigger is a client bug.
const maxBodyBytes = 64 << 10

type startSessionRequest struct {
	KioskID string `json:"kiosk_id"`
}

type startSessionResponse struct {
	SessionID       string `json:"session_id"`
	Token           string `json:"token"`
	LiveKitURL      string `json:"livekit_url"`
	RoomName        string `json:"room_name"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.KioskID == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "kiosk_id is required")
		return
	}

	created, err := s.registry.Create(req.KioskID)
	if err != nil {
		slog.Error("api: session creation failed", "kiosk_id", req.KioskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create session")
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(r.Context(), 1)
	}

	url := s.livekitURL
	if url == "" {
		url = created.Access.URL
	}
	writeJSON(w, http.StatusOK, startSessionResponse{
		SessionID:       created.SessionID,
		Token:           created.Access.Token,
		LiveKitURL:      url,
		RoomName:        created.RoomID,
		DurationSeconds: created.DurationS,
	})
}

type converseRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type converseResponse struct {
	AssistantResponse string `json:"assistant_response"`
	AudioBase64       string `json:"audio_base64"`
	ImagesScheduled   int    `json:"images_scheduled"`
	EndChat           bool   `json:"end_chat"`
	TTSError          bool   `json:"tts_error,omitempty"`
}

func (s *Server) converse(w http.ResponseWriter, r *http.Request) {
	var req converseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "session_id and message are required")
		return
	}

	// The turn outlives the request: a kiosk that drops the connection
	// mid-turn must not cancel the model call or the scheduled visuals.
	// The pipeline bounds each stage with its own timeout.
	res, err := s.pipeline.Converse(context.WithoutCancel(r.Context()), req.SessionID, req.Message)
	switch {
	case errors.Is(err, convo.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "no active session with that id")
		return
	case errors.Is(err, convo.ErrUpstreamLLM):
		slog.Warn("api: turn dropped on upstream failure", "session_id", req.SessionID, "err", err)
		writeError(w, http.StatusBadGateway, "upstream_llm", "language model unavailable")
		return
	case err != nil:
		slog.Error("api: turn failed", "session_id", req.SessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "turn failed")
		return
	}

	writeJSON(w, http.StatusOK, converseResponse{
		AssistantResponse: res.AssistantText,
		AudioBase64:       base64.StdEncoding.EncodeToString(res.Audio),
		ImagesScheduled:   res.ImagesScheduled,
		EndChat:           res.EndChat,
		TTSError:          res.TTSError,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", "no session with that id")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	reason := session.EndManual
	if r.URL.Query().Get("reason") == "operator" {
		reason = session.EndOperator
	}
	if err := s.registry.End(chi.URLParam(r, "id"), reason); err != nil {
		writeError(w, http.StatusNotFound, "session_not_found", "no session with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ended": true})
}

func (s *Server) keepalive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.registry.Active(id) {
		writeError(w, http.StatusNotFound, "session_not_found", "no active session with that id")
		return
	}
	s.registry.Refresh(id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type healthSummaryResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	TotalSessions  int    `json:"total_sessions"`
}

func (s *Server) healthSummary(w http.ResponseWriter, _ *http.Request) {
	active, total := s.registry.Counts()
	writeJSON(w, http.StatusOK, healthSummaryResponse{
		Status:         "ok",
		ActiveSessions: active,
		TotalSessions:  total,
	})
}

func (s *Server) reloadCatalogue(w http.ResponseWriter, _ *http.Request) {
	if err := s.catalogue.Reload(); err != nil {
		slog.Error("api: catalogue reload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "catalogue reload failed")
		return
	}
	slog.Info("catalogue reloaded", "entries", s.catalogue.Len())
	writeJSON(w, http.StatusOK, map[string]int{"entries": s.catalogue.Len()})
}

// decodeBody decodes a bounded JSON body into v, writing a 400 and
// returning false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return false
	}
	return true
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: response encoding failed", "err", err)
	}
}
