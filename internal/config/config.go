// Package config provides the configuration schema and loader for the kiosk
// orchestration server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the kiosk server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LLM       LLMConfig       `yaml:"llm"`
	TTS       TTSConfig       `yaml:"tts"`
	LiveKit   LiveKitConfig   `yaml:"livekit"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the public API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// AdminAddr is the TCP address for /metrics, /healthz and /readyz.
	// Empty means the admin endpoints share ListenAddr.
	AdminAddr string `yaml:"admin_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ConverseRateLimit is the per-IP request budget per minute on /converse.
	// Zero disables rate limiting.
	ConverseRateLimit int `yaml:"converse_rate_limit"`
}

// SessionConfig holds the session lifecycle timing knobs.
type SessionConfig struct {
	// IdleTimeoutMS ends a session after this much inactivity. Default 600000.
	IdleTimeoutMS int64 `yaml:"session_idle_timeout_ms"`

	// DurationS is the hard session duration from creation, independent of
	// activity. Default 300.
	DurationS int64 `yaml:"session_duration_s"`

	// SweepIntervalMS is the period of the background sweep that deletes
	// ended sessions past their grace period. Default 60000.
	SweepIntervalMS int64 `yaml:"session_sweep_interval_ms"`
}

// IdleTimeout returns IdleTimeoutMS as a [time.Duration].
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

// Duration returns DurationS as a [time.Duration].
func (s SessionConfig) Duration() time.Duration {
	return time.Duration(s.DurationS) * time.Second
}

// SweepInterval returns SweepIntervalMS as a [time.Duration].
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMS) * time.Millisecond
}

// PipelineConfig holds the conversation pipeline timing knobs.
type PipelineConfig struct {
	// AnchorLeadMS is the pre-roll between scheduling and speech start that
	// absorbs the HTTP round-trip and client decode. Default 1000.
	AnchorLeadMS int64 `yaml:"anchor_lead_ms"`

	// PreloadLeadMS is how far ahead of its show instant an image preload is
	// dispatched. Default 1500.
	PreloadLeadMS int64 `yaml:"preload_lead_ms"`

	// ShowCrossfadeMS is the crossfade duration carried on img_show. Default 400.
	ShowCrossfadeMS int64 `yaml:"show_crossfade_ms"`

	// LateShowToleranceMS is how late a show may fire on the client before it
	// is dropped. Default 100.
	LateShowToleranceMS int64 `yaml:"late_show_tolerance_ms"`

	// PreloadTTLMS is how long a preloaded image stays renderable on the
	// client. Default 60000.
	PreloadTTLMS int64 `yaml:"preload_ttl_ms"`

	// Persona is the system prompt inserted at the head of every
	// conversation history.
	Persona string `yaml:"persona"`
}

// LLMConfig configures the outbound language model adapter.
type LLMConfig struct {
	// BaseURL is the language model service root (POST {BaseURL}/chat).
	BaseURL string `yaml:"base_url"`

	// TimeoutMS is the per-turn LLM deadline. Default 15000.
	TimeoutMS int64 `yaml:"llm_timeout_ms"`
}

// Timeout returns TimeoutMS as a [time.Duration].
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMS) * time.Millisecond
}

// TTSTierConfig describes one synthesiser tier. Tiers are tried in declared
// order until one succeeds.
type TTSTierConfig struct {
	// Name is a human-readable label used in logs and response metadata
	// (e.g., "primary", "local").
	Name string `yaml:"name"`

	// BaseURL is the synthesiser service root (POST {BaseURL}/synthesize).
	// Empty selects the built-in sine placeholder tier.
	BaseURL string `yaml:"base_url"`
}

// TTSConfig configures synthesis and the content-addressed audio cache.
type TTSConfig struct {
	// Tiers lists the synthesiser backends in failover order. When empty a
	// single sine placeholder tier is used.
	Tiers []TTSTierConfig `yaml:"tiers"`

	// TimeoutMS is the per-turn synthesis deadline. Default 10000.
	TimeoutMS int64 `yaml:"tts_timeout_ms"`

	// CacheEnabled toggles the on-disk audio cache. Default true.
	CacheEnabled *bool `yaml:"tts_cache_enabled"`

	// CacheDir is the cache directory. Empty means a "kiosk-tts-cache"
	// directory under the OS temp dir.
	CacheDir string `yaml:"tts_cache_dir"`
}

// Timeout returns TimeoutMS as a [time.Duration].
func (t TTSConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// CacheOn reports whether the audio cache is enabled (default true).
func (t TTSConfig) CacheOn() bool {
	return t.CacheEnabled == nil || *t.CacheEnabled
}

// LiveKitConfig configures the SFU transport used for room datachannels.
// When URL is empty the server falls back to the in-process websocket hub,
// which is the development and test transport.
type LiveKitConfig struct {
	// URL is the LiveKit server URL handed to clients (e.g., "wss://lk.example.com").
	URL string `yaml:"url"`

	// APIKey and APISecret authenticate the server to LiveKit and sign the
	// per-session capability tokens.
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// TokenTTLMinutes bounds the validity of minted capability tokens.
	// Default 30.
	TokenTTLMinutes int `yaml:"token_ttl_minutes"`
}

// CatalogueConfig locates the static image catalogue document.
type CatalogueConfig struct {
	// Path is the YAML catalogue file loaded at startup.
	Path string `yaml:"path"`
}
