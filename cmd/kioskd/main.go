// Command kioskd is the kiosk orchestration server: session lifecycle,
// conversation turns, audio synthesis with a content-addressed cache, and
// timed visual dispatch over room datachannels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/omkarlalla-code/kiosk-project/internal/api"
	"github.com/omkarlalla-code/kiosk-project/internal/catalog"
	"github.com/omkarlalla-code/kiosk-project/internal/config"
	"github.com/omkarlalla-code/kiosk-project/internal/convo"
	"github.com/omkarlalla-code/kiosk-project/internal/dispatch"
	"github.com/omkarlalla-code/kiosk-project/internal/health"
	"github.com/omkarlalla-code/kiosk-project/internal/observe"
	"github.com/omkarlalla-code/kiosk-project/internal/resilience"
	"github.com/omkarlalla-code/kiosk-project/internal/session"
	"github.com/omkarlalla-code/kiosk-project/internal/transport"
	"github.com/omkarlalla-code/kiosk-project/internal/transport/hub"
	lktransport "github.com/omkarlalla-code/kiosk-project/internal/transport/livekit"
	"github.com/omkarlalla-code/kiosk-project/pkg/llm/httpllm"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts/cache"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts/httptts"
	"github.com/omkarlalla-code/kiosk-project/pkg/tts/sinetts"
)

// shutdownTimeout bounds the graceful drain of servers and exporters.
const shutdownTimeout = 15 * time.Second

// The registry is the production implementation of the pipeline's session
// view.
var _ convo.Sessions = (*session.Registry)(nil)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kioskd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kioskd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "kioskd",
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	catalogue, err := catalog.Open(cfg.Catalogue.Path)
	if err != nil {
		slog.Error("catalogue load failed", "path", cfg.Catalogue.Path, "err", err)
		return 1
	}
	slog.Info("catalogue loaded", "path", cfg.Catalogue.Path, "entries", catalogue.Len())
	resolver := catalog.NewResolver(catalogue)

	rt, roomHub, lkURL, err := buildTransport(cfg)
	if err != nil {
		slog.Error("transport init failed", "err", err)
		return 1
	}

	router := dispatch.New(rt, dispatch.WithMetrics(metrics))
	registry := session.NewRegistry(session.Config{
		IdleTimeout:   cfg.Session.IdleTimeout(),
		Duration:      cfg.Session.Duration(),
		SweepInterval: cfg.Session.SweepInterval(),
	}, rt, router)

	provider, err := httpllm.New(cfg.LLM.BaseURL)
	if err != nil {
		slog.Error("llm adapter init failed", "err", err)
		return 1
	}
	guarded := resilience.NewGuardedLLM(provider, resilience.BreakerConfig{Name: "llm"})

	synth, err := buildSynthesizer(cfg.TTS)
	if err != nil {
		slog.Error("tts init failed", "err", err)
		return 1
	}

	history := convo.NewHistory(cfg.Pipeline.Persona)
	pipeline := convo.New(convo.Config{
		AnchorLeadMS:    cfg.Pipeline.AnchorLeadMS,
		PreloadLeadMS:   cfg.Pipeline.PreloadLeadMS,
		ShowCrossfadeMS: cfg.Pipeline.ShowCrossfadeMS,
		PreloadTTLMS:    cfg.Pipeline.PreloadTTLMS,
		LLMTimeout:      cfg.LLM.Timeout(),
		TTSTimeout:      cfg.TTS.Timeout(),
	}, registry, guarded, synth, resolver, router, history, metrics)

	registry.OnEnd(func(sessionID string, reason session.EndReason) {
		pipeline.Discard(sessionID)
		metrics.ActiveSessions.Add(context.Background(), -1)
		metrics.SessionEnds.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", string(reason))))
	})

	broadcaster := session.NewBroadcaster(registry)

	healthHandler := health.New(
		health.CatalogueChecker(catalogue.Len),
		health.CacheDirChecker(cfg.TTS.CacheDir),
	)

	opts := []api.Option{
		api.WithLiveKitURL(lkURL),
		api.WithConverseRateLimit(cfg.Server.ConverseRateLimit),
	}
	if roomHub != nil {
		opts = append(opts, api.WithHandler("/rooms/{roomID}/ws", roomHub.Handler()))
	}
	server := api.New(registry, pipeline, catalogue, healthHandler, metrics, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var adminServer *http.Server
	if cfg.Server.AdminAddr != "" {
		adminMux := http.NewServeMux()
		adminMux.Handle("GET /metrics", promhttp.Handler())
		adminMux.HandleFunc("GET /healthz", healthHandler.Healthz)
		adminMux.HandleFunc("GET /readyz", healthHandler.Readyz)
		adminServer = &http.Server{
			Addr:              cfg.Server.AdminAddr,
			Handler:           adminMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		registry.RunSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		broadcaster.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if adminServer != nil {
		g.Go(func() error {
			slog.Info("admin endpoints listening", "addr", cfg.Server.AdminAddr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutdown signal received, stopping…")
		registry.EndAll(session.EndShutdown)

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if adminServer != nil {
			errs = append(errs, adminServer.Shutdown(drainCtx))
		}
		errs = append(errs, httpServer.Shutdown(drainCtx))
		return errors.Join(errs...)
	})

	exitCode := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return exitCode
}

// buildTransport selects the room transport: LiveKit when configured, the
// in-process websocket hub otherwise. The hub is the development and test
// transport; its handler must be mounted on the public router. The third
// return value is the URL handed to clients in start_session responses.
func buildTransport(cfg *config.Config) (transport.RoomTransport, *hub.Hub, string, error) {
	if cfg.LiveKit.URL != "" {
		t, err := lktransport.New(lktransport.Config{
			URL:       cfg.LiveKit.URL,
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
			TokenTTL:  time.Duration(cfg.LiveKit.TokenTTLMinutes) * time.Minute,
		})
		if err != nil {
			return nil, nil, "", err
		}
		slog.Info("using LiveKit transport", "url", cfg.LiveKit.URL)
		return t, nil, cfg.LiveKit.URL, nil
	}

	publicURL := "ws://localhost" + cfg.Server.ListenAddr
	if !strings.HasPrefix(cfg.Server.ListenAddr, ":") {
		publicURL = "ws://" + cfg.Server.ListenAddr
	}
	h := hub.New(publicURL)
	slog.Info("using in-process websocket hub", "public_url", publicURL)
	return h, h, publicURL, nil
}

// buildSynthesizer assembles the cache-fronted tiered synthesiser. Tiers
// are tried in declared order; an empty tier list or an empty base_url
// selects the sine placeholder, so a degraded deployment still speaks.
func buildSynthesizer(cfg config.TTSConfig) (*cache.Cache, error) {
	tiered := resilience.NewTieredSynthesizer(resilience.BreakerConfig{})

	for _, tier := range cfg.Tiers {
		if tier.BaseURL == "" {
			tiered.AddTier(tier.Name, sinetts.New())
			continue
		}
		s, err := httptts.New(tier.Name, tier.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("tts tier %q: %w", tier.Name, err)
		}
		tiered.AddTier(tier.Name, s)
	}
	if len(cfg.Tiers) == 0 {
		tiered.AddTier(sinetts.TierName, sinetts.New())
	}

	var opts []cache.Option
	if !cfg.CacheOn() {
		opts = append(opts, cache.Disabled())
	}
	return cache.New(cfg.CacheDir, tiered, opts...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
