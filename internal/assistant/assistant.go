// Package assistant answers typed questions about the roadmap and reads
// answers aloud. It complements the live voice session with the two
// request/response calls of the guide: grounded chat and text-to-speech.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/peridot-guide/internal/observe"
	"github.com/MrWong99/peridot-guide/internal/resilience"
	"github.com/MrWong99/peridot-guide/pkg/audio"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	// DefaultChatModel answers chat messages.
	DefaultChatModel = "gemini-3-flash-preview"

	// DefaultSpeechModel synthesises speech.
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"

	// DefaultSpeechVoice is the prebuilt voice used for speech.
	DefaultSpeechVoice = "Kore"

	// DefaultHistory is the number of earlier messages sent with each chat
	// request.
	DefaultHistory = 5

	// providerName labels metrics.
	providerName = "gemini"
)

// ErrNoAudio is returned when a speech response carries no audio.
var ErrNoAudio = errors.New("assistant: no audio generated")

// Generator is the subset of the genai client the assistant uses.
// *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGenerator returns the genai model service for apiKey. baseURL may be
// empty.
func NewGenerator(ctx context.Context, apiKey, baseURL string) (Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Config holds the assistant's model settings.
type Config struct {
	// Instructions is the system instruction for chat.
	Instructions string

	// ChatModel is tried first for chat. Default [DefaultChatModel].
	ChatModel string

	// FallbackModels are tried in order when ChatModel fails.
	FallbackModels []string

	// SpeechModel synthesises speech. Default [DefaultSpeechModel].
	SpeechModel string

	// SpeechVoice is the prebuilt voice. Default [DefaultSpeechVoice].
	SpeechVoice string

	// History is how many earlier messages accompany a chat request.
	// Default [DefaultHistory].
	History int

	// Search enables Google Search grounding for chat.
	Search bool
}

func (c Config) withDefaults() Config {
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = DefaultSpeechModel
	}
	if c.SpeechVoice == "" {
		c.SpeechVoice = DefaultSpeechVoice
	}
	if c.History <= 0 {
		c.History = DefaultHistory
	}
	return c
}

// Option is a functional option for [New].
type Option func(*Assistant)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics sets the metrics instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithBreaker overrides the circuit breaker settings shared by the chat
// models and the speech model.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(a *Assistant) { a.breakerCfg = cfg }
}

// Assistant answers chat messages and speaks text. It is safe for concurrent
// use.
type Assistant struct {
	gen      Generator
	platform audio.Platform
	cfg      Config

	log        *slog.Logger
	metrics    *observe.Metrics
	breakerCfg resilience.CircuitBreakerConfig

	chat   *resilience.FallbackGroup[string]
	speech *resilience.CircuitBreaker
}

// New creates an Assistant. platform is used to play speech and may be nil if
// only [Assistant.Chat] and [Assistant.Synthesize] are used.
func New(gen Generator, platform audio.Platform, cfg Config, opts ...Option) *Assistant {
	a := &Assistant{
		gen:      gen,
		platform: platform,
		cfg:      cfg.withDefaults(),
		log:      slog.Default(),
		breakerCfg: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.breakerCfg.Logger == nil {
		a.breakerCfg.Logger = a.log
	}

	a.chat = resilience.NewFallbackGroup(a.cfg.ChatModel, a.cfg.ChatModel, resilience.FallbackConfig{CircuitBreaker: a.breakerCfg})
	for _, m := range a.cfg.FallbackModels {
		a.chat.AddFallback(m, m)
	}
	speechCfg := a.breakerCfg
	speechCfg.Name = a.cfg.SpeechModel
	a.speech = resilience.NewCircuitBreaker(speechCfg)
	return a
}

// record emits the latency and request metrics of one call of kind.
func (a *Assistant) record(ctx context.Context, h metric.Float64Histogram, kind string, start time.Time, err error) {
	status := observe.Status(err)
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("status", status)))
	a.metrics.RecordProviderRequest(ctx, providerName, kind, status)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.metrics.RecordProviderError(ctx, providerName, kind)
	}
}
