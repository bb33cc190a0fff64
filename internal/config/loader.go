package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults for every tuning knob. Applied by [ApplyDefaults] wherever the
// loaded value is zero.
const (
	DefaultIdleTimeoutMS       = 600_000
	DefaultDurationS           = 300
	DefaultSweepIntervalMS     = 60_000
	DefaultAnchorLeadMS        = 1_000
	DefaultPreloadLeadMS       = 1_500
	DefaultShowCrossfadeMS     = 400
	DefaultLateShowToleranceMS = 100
	DefaultPreloadTTLMS        = 60_000
	DefaultLLMTimeoutMS        = 15_000
	DefaultTTSTimeoutMS        = 10_000
	DefaultTokenTTLMinutes     = 30
	DefaultListenAddr          = ":8080"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults replaces zero-value fields in cfg with the documented
// defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.IdleTimeoutMS <= 0 {
		cfg.Session.IdleTimeoutMS = DefaultIdleTimeoutMS
	}
	if cfg.Session.DurationS <= 0 {
		cfg.Session.DurationS = DefaultDurationS
	}
	if cfg.Session.SweepIntervalMS <= 0 {
		cfg.Session.SweepIntervalMS = DefaultSweepIntervalMS
	}
	if cfg.Pipeline.AnchorLeadMS <= 0 {
		cfg.Pipeline.AnchorLeadMS = DefaultAnchorLeadMS
	}
	if cfg.Pipeline.PreloadLeadMS <= 0 {
		cfg.Pipeline.PreloadLeadMS = DefaultPreloadLeadMS
	}
	if cfg.Pipeline.ShowCrossfadeMS <= 0 {
		cfg.Pipeline.ShowCrossfadeMS = DefaultShowCrossfadeMS
	}
	if cfg.Pipeline.LateShowToleranceMS <= 0 {
		cfg.Pipeline.LateShowToleranceMS = DefaultLateShowToleranceMS
	}
	if cfg.Pipeline.PreloadTTLMS <= 0 {
		cfg.Pipeline.PreloadTTLMS = DefaultPreloadTTLMS
	}
	if cfg.LLM.TimeoutMS <= 0 {
		cfg.LLM.TimeoutMS = DefaultLLMTimeoutMS
	}
	if cfg.TTS.TimeoutMS <= 0 {
		cfg.TTS.TimeoutMS = DefaultTTSTimeoutMS
	}
	if cfg.TTS.CacheDir == "" {
		cfg.TTS.CacheDir = filepath.Join(os.TempDir(), "kiosk-tts-cache")
	}
	if cfg.LiveKit.TokenTTLMinutes <= 0 {
		cfg.LiveKit.TokenTTLMinutes = DefaultTokenTTLMinutes
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ConverseRateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.converse_rate_limit must not be negative"))
	}

	if cfg.LiveKit.URL != "" {
		if cfg.LiveKit.APIKey == "" {
			errs = append(errs, fmt.Errorf("livekit.api_key is required when livekit.url is set"))
		}
		if cfg.LiveKit.APISecret == "" {
			errs = append(errs, fmt.Errorf("livekit.api_secret is required when livekit.url is set"))
		}
	}

	seen := make(map[string]int, len(cfg.TTS.Tiers))
	for i, tier := range cfg.TTS.Tiers {
		prefix := fmt.Sprintf("tts.tiers[%d]", i)
		if tier.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[tier.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tts.tiers[%d]", prefix, tier.Name, prev))
		}
		seen[tier.Name] = i
	}

	return errors.Join(errs...)
}
