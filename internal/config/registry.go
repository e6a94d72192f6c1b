package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/peridot-guide/pkg/audio"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider and platform names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	s2s   map[string]func(ProviderEntry, LiveConfig) (s2s.Provider, error)
	audio map[string]func(AudioConfig) (audio.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		s2s:   make(map[string]func(ProviderEntry, LiveConfig) (s2s.Provider, error)),
		audio: make(map[string]func(AudioConfig) (audio.Platform, error)),
	}
}

// RegisterS2S registers a speech-to-speech provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterS2S(name string, factory func(ProviderEntry, LiveConfig) (s2s.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s2s[name] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateS2S instantiates the provider registered under cfg.Providers.S2S.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateS2S(cfg *Config) (s2s.Provider, error) {
	entry := cfg.Providers.S2S
	r.mu.RLock()
	factory, ok := r.s2s[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: s2s/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, cfg.Live)
}

// CreateAudio instantiates the platform registered under cfg.Audio.Platform.
func (r *Registry) CreateAudio(cfg *Config) (audio.Platform, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Audio.Platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, cfg.Audio.Platform)
	}
	return factory(cfg.Audio)
}

// Names returns the registered names per kind, for startup summaries.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{}
	for n := range r.s2s {
		out["s2s"] = append(out["s2s"], n)
	}
	for n := range r.audio {
		out["audio"] = append(out["audio"], n)
	}
	return out
}
