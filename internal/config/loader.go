package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultS2SProvider    = "gemini-live"
	DefaultChatProvider   = "gemini"
	DefaultTTSProvider    = "gemini"
	DefaultAudioPlatform  = "ffmpeg"
	DefaultConnectTimeout = 15 * time.Second
)

// APIKeyEnv lists the environment variables consulted, in order, for a
// provider without an api_key.
var APIKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"s2s":   {"gemini-live"},
	"chat":  {"gemini"},
	"tts":   {"gemini"},
	"audio": {"ffmpeg"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		ApplyDefaults(cfg, os.LookupEnv)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
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

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset provider names, the log level, the connect timeout
// and missing API keys. lookup reads environment variables.
func ApplyDefaults(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.S2S.Name == "" {
		cfg.Providers.S2S.Name = DefaultS2SProvider
	}
	if cfg.Providers.Chat.Name == "" {
		cfg.Providers.Chat.Name = DefaultChatProvider
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = DefaultTTSProvider
	}
	if cfg.Audio.Platform == "" {
		cfg.Audio.Platform = DefaultAudioPlatform
	}
	if cfg.Live.ConnectTimeout <= 0 {
		cfg.Live.ConnectTimeout = DefaultConnectTimeout
	}

	key := envAPIKey(lookup)
	for _, e := range []*ProviderEntry{&cfg.Providers.S2S, &cfg.Providers.Chat, &cfg.Providers.TTS} {
		if e.APIKey == "" {
			e.APIKey = key
		}
	}
}

func envAPIKey(lookup func(string) (string, bool)) string {
	for _, name := range APIKeyEnv {
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("audio", cfg.Audio.Platform)

	if cfg.Providers.S2S.APIKey == "" {
		slog.Warn("no API key configured; set providers.s2s.api_key or GEMINI_API_KEY")
	}

	live := cfg.Live
	if live.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("live.block_size %d must not be negative", live.BlockSize))
	}
	if live.BlockSize > 0 && live.BlockSize&(live.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("live.block_size %d must be a power of two", live.BlockSize))
	}
	for _, r := range []struct {
		field string
		rate  int
	}{
		{"live.input_sample_rate", live.InputSampleRate},
		{"live.output_sample_rate", live.OutputSampleRate},
	} {
		if r.rate != 0 && (r.rate < 8000 || r.rate > 48000) {
			errs = append(errs, fmt.Errorf("%s %d is out of range [8000, 48000]", r.field, r.rate))
		}
	}
	if live.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("live.send_queue %d must not be negative", live.SendQueue))
	}

	if cfg.Assistant.History < 0 {
		errs = append(errs, fmt.Errorf("assistant.history %d must not be negative", cfg.Assistant.History))
	}
	for i, m := range cfg.Assistant.FallbackModels {
		if m == "" {
			errs = append(errs, fmt.Errorf("assistant.fallback_models[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
