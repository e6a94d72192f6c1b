// Package ffmpeg provides an [audio.Platform] backed by external processes:
// ffmpeg captures the microphone and a raw PCM player (ffplay or aplay) plays
// the output timeline.
//
// The output side renders its own software timeline in fixed 20 ms quanta, so
// the playback clock reported by [audio.OutputContext.Now] is the number of
// frames rendered so far. Both contexts start [audio.StateSuspended]; the
// player process is started by Resume.
package ffmpeg

import (
	"context"
	"log/slog"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Config holds the external commands and capture device used by [Platform].
// Zero values fall back to the defaults documented on each field.
type Config struct {
	// Command is the ffmpeg binary used for capture. Default "ffmpeg".
	Command string

	// InputFormat is the ffmpeg input device format ("pulse", "alsa",
	// "avfoundation", "dshow"). Default "pulse".
	InputFormat string

	// InputDevice names the capture device for InputFormat. Default "default".
	InputDevice string

	// PlayerCommand is the raw PCM player. "ffplay" and "aplay" are recognised
	// and get matching arguments. Default "ffplay".
	PlayerCommand string

	// CaptureFormat is the format ffmpeg resamples the microphone to.
	// Default 16 kHz mono.
	CaptureFormat audio.Format
}

func (c Config) withDefaults() Config {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.PlayerCommand == "" {
		c.PlayerCommand = "ffplay"
	}
	if c.CaptureFormat.SampleRate <= 0 {
		c.CaptureFormat.SampleRate = 16000
	}
	if c.CaptureFormat.Channels <= 0 {
		c.CaptureFormat.Channels = 1
	}
	return c
}

// Option is a functional option for [New].
type Option func(*Platform)

// WithLogger sets the logger used by the platform and the contexts it creates.
func WithLogger(l *slog.Logger) Option {
	return func(p *Platform) {
		if l != nil {
			p.log = l
		}
	}
}

// Platform implements [audio.Platform] with ffmpeg and a PCM player.
// It is safe for concurrent use.
type Platform struct {
	cfg Config
	log *slog.Logger
}

// New creates a [Platform] from cfg.
func New(cfg Config, opts ...Option) *Platform {
	p := &Platform{cfg: cfg.withDefaults(), log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// OpenMicrophone starts an ffmpeg capture process. A process that exits during
// start-up (device busy, access refused, no such device) yields an error
// wrapping [audio.ErrPermissionDenied].
func (p *Platform) OpenMicrophone(ctx context.Context) (audio.Microphone, error) {
	return startCapture(ctx, p.cfg)
}

// NewInputContext returns a suspended capture context running at f.
func (p *Platform) NewInputContext(f audio.Format) (audio.InputContext, error) {
	return newInputContext(f, p.log), nil
}

// NewOutputContext returns a suspended playback context running at f. The
// player process starts on the first Resume.
func (p *Platform) NewOutputContext(f audio.Format) (audio.OutputContext, error) {
	cmd := p.cfg.PlayerCommand
	return newOutputContext(f, func() (sink, error) { return startPlayer(cmd, f) }, p.log), nil
}
