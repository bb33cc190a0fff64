// Package api exposes the kiosk orchestration core over HTTP: session
// lifecycle, conversation turns, health, and the operational admin surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omkarlalla-code/kiosk-project/internal/catalog"
	"github.com/omkarlalla-code/kiosk-project/internal/convo"
	"github.com/omkarlalla-code/kiosk-project/internal/health"
	"github.com/omkarlalla-code/kiosk-project/internal/observe"
	"github.com/omkarlalla-code/kiosk-project/internal/session"
)

// DefaultConverseRateLimit bounds conversation turns per kiosk IP per
// minute. Turns fan out to the language model and synthesiser, so this is
// deliberately tight.
const DefaultConverseRateLimit = 60

// Server holds the HTTP surface's collaborators. All of them are injected;
// the server owns none of their lifecycles.
type Server struct {
	registry  *session.Registry
	pipeline  *convo.Pipeline
	catalogue *catalog.Catalogue
	health    *health.Handler
	metrics   *observe.Metrics

	livekitURL   string
	converseRate int
	extra        map[string]http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithLiveKitURL sets the SFU URL handed to clients in start_session
// responses.
func WithLiveKitURL(url string) Option {
	return func(s *Server) { s.livekitURL = url }
}

// WithHandler attaches an extra handler at the given route pattern with the
// request path left intact. The development websocket hub attaches its
// /rooms/{roomID}/ws endpoint this way.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) { s.extra[pattern] = h }
}

// WithConverseRateLimit overrides the per-IP per-minute budget on
// /converse. Zero or negative disables rate limiting.
func WithConverseRateLimit(perMinute int) Option {
	return func(s *Server) { s.converseRate = perMinute }
}

// New creates a Server. metrics may be nil in tests.
func New(reg *session.Registry, pipe *convo.Pipeline, cat *catalog.Catalogue,
	hh *health.Handler, metrics *observe.Metrics, opts ...Option) *Server {
	s := &Server{
		registry:     reg,
		pipeline:     pipe,
		catalogue:    cat,
		health:       hh,
		metrics:      metrics,
		converseRate: DefaultConverseRateLimit,
		extra:        make(map[string]http.Handler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the full router: recovery, observability middleware, rate
// limiting on the conversation path, and all endpoint groups.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}

	r.Post("/start_session", s.startSession)

	r.Group(func(r chi.Router) {
		if s.converseRate > 0 {
			r.Use(httprate.Limit(s.converseRate, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/converse", s.converse)
	})

	r.Route("/session/{id}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Delete("/", s.endSession)
		r.Post("/keepalive", s.keepalive)
	})

	r.Get("/health", s.healthSummary)
	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/admin/reload_catalogue", s.reloadCatalogue)

	for pattern, h := range s.extra {
		r.Handle(pattern, h)
	}
	return r
}
