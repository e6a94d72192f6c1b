package main

import (
	"errors"
	"log/slog"

	"github.com/MrWong99/peridot-guide/internal/config"
	"github.com/MrWong99/peridot-guide/pkg/audio"
	"github.com/MrWong99/peridot-guide/pkg/audio/ffmpeg"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s/gemini"
)

var errNoAPIKey = errors.New("no API key; set providers.s2s.api_key or GEMINI_API_KEY")

// registerBuiltinProviders wires the providers that ship with peridot-guide
// into reg. live supplies the capture rate the ffmpeg platform resamples to.
func registerBuiltinProviders(reg *config.Registry, live config.LiveConfig, log *slog.Logger) {
	reg.RegisterS2S("gemini-live", func(entry config.ProviderEntry, lc config.LiveConfig) (s2s.Provider, error) {
		if entry.APIKey == "" {
			return nil, errNoAPIKey
		}
		opts := []gemini.Option{gemini.WithLogger(log)}
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		queue := lc.SendQueue
		if queue == 0 {
			queue = optInt(entry.Options, "send_queue")
		}
		if queue > 0 {
			opts = append(opts, gemini.WithSendQueue(queue))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterAudio("ffmpeg", func(ac config.AudioConfig) (audio.Platform, error) {
		cfg := ffmpeg.Config{
			Command:       ac.Command,
			InputFormat:   ac.InputFormat,
			InputDevice:   ac.InputDevice,
			PlayerCommand: ac.PlayerCommand,
		}
		if live.InputSampleRate > 0 {
			cfg.CaptureFormat = audio.Mono(live.InputSampleRate)
		}
		return ffmpeg.New(cfg, ffmpeg.WithLogger(log)), nil
	})
}

// optInt extracts an integer from a provider Options map. YAML numbers decode
// as int; JSON-style floats are truncated. Returns 0 when absent.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
