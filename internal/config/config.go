// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for peridot-guide.
package config

import "time"

// LogLevel controls log verbosity.
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

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Live      LiveConfig      `yaml:"live"`
	Assistant AssistantConfig `yaml:"assistant"`
	Audio     AudioConfig     `yaml:"audio"`

	// Roadmap is the path of a roadmap YAML file. Empty uses the built-in
	// roadmap.
	Roadmap string `yaml:"roadmap"`
}

// ServerConfig holds logging and the optional observability HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g. ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default info.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares the remote model endpoints.
type ProvidersConfig struct {
	// S2S is the realtime speech-to-speech endpoint of the live session.
	S2S ProviderEntry `yaml:"s2s"`

	// Chat answers typed questions.
	Chat ProviderEntry `yaml:"chat"`

	// TTS reads answers aloud.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// The Name field selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "gemini-live").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty the
	// GEMINI_API_KEY and API_KEY environment variables are consulted, in that
	// order.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// LiveConfig tunes the realtime voice session.
type LiveConfig struct {
	// Voice is the prebuilt voice of the remote model. Default "Zephyr".
	Voice string `yaml:"voice"`

	// BlockSize is the number of frames per outbound audio block. Default 4096.
	BlockSize int `yaml:"block_size"`

	// InputSampleRate is the capture rate in Hz. Default 16000.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate in Hz. Default 24000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// SendQueue bounds the provider's outbound frame queue.
	SendQueue int `yaml:"send_queue"`

	// Transcribe prints transcripts of both sides of the conversation.
	Transcribe bool `yaml:"transcribe"`

	// ConnectTimeout bounds the whole connect handshake. Default 15s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AssistantConfig tunes text chat and speech.
type AssistantConfig struct {
	// History is the number of earlier messages sent with each chat request.
	// Default 5.
	History int `yaml:"history"`

	// FallbackModels are tried in order when the chat model fails.
	FallbackModels []string `yaml:"fallback_models"`

	// SpeechVoice is the prebuilt TTS voice. Default "Kore".
	SpeechVoice string `yaml:"speech_voice"`

	// Search grounds chat answers with Google Search. Default true.
	Search *bool `yaml:"search"`
}

// SearchEnabled reports whether chat should use search grounding.
func (a AssistantConfig) SearchEnabled() bool {
	return a.Search == nil || *a.Search
}

// AudioConfig selects and configures the local audio platform.
type AudioConfig struct {
	// Platform names the registered audio platform. Default "ffmpeg".
	Platform string `yaml:"platform"`

	// Command is the capture binary. Default "ffmpeg".
	Command string `yaml:"command"`

	// InputFormat is the ffmpeg capture device format ("pulse", "alsa",
	// "avfoundation", "dshow").
	InputFormat string `yaml:"input_format"`

	// InputDevice names the capture device.
	InputDevice string `yaml:"input_device"`

	// PlayerCommand is the raw PCM player ("ffplay" or "aplay").
	PlayerCommand string `yaml:"player_command"`
}
