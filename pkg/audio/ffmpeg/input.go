package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

// inputContext slices an f32le microphone stream into fixed-size blocks.
type inputContext struct {
	format audio.Format
	log    *slog.Logger

	mu      sync.Mutex
	state   audio.ContextState
	started bool
	done    chan struct{}
}

func newInputContext(f audio.Format, log *slog.Logger) *inputContext {
	return &inputContext{
		format: f,
		log:    log,
		state:  audio.StateSuspended,
		done:   make(chan struct{}),
	}
}

func (c *inputContext) Format() audio.Format { return c.format }

func (c *inputContext) State() audio.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *inputContext) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case audio.StateClosed:
		return audio.ErrContextClosed
	case audio.StateSuspended:
		c.state = audio.StateRunning
	}
	return nil
}

func (c *inputContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return nil
	}
	c.state = audio.StateClosed
	close(c.done)
	return nil
}

// Process reads blockSize frames at a time from mic on a new goroutine.
// Blocks read while the context is suspended are discarded.
func (c *inputContext) Process(mic audio.Microphone, blockSize int, fn func([]float32)) error {
	if blockSize <= 0 {
		return fmt.Errorf("ffmpeg: process: invalid block size %d", blockSize)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return audio.ErrContextClosed
	}
	if c.started {
		return errors.New("ffmpeg: process: already started")
	}
	c.started = true
	go c.readLoop(mic, blockSize, fn)
	return nil
}

func (c *inputContext) readLoop(mic audio.Microphone, blockSize int, fn func([]float32)) {
	raw := make([]byte, blockSize*c.format.Channels*4)
	for {
		if _, err := io.ReadFull(mic, raw); err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					c.log.Warn("ffmpeg: microphone read failed", "err", err)
				}
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		if c.State() != audio.StateRunning {
			continue
		}
		fn(audio.DecodeFloat32LE(raw))
	}
}
