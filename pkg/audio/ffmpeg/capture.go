package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

const (
	// startupGrace is how long a capture process must stay alive before the
	// device is considered open.
	startupGrace = 250 * time.Millisecond

	// stopGrace is how long Close waits after SIGINT before killing.
	stopGrace = 1200 * time.Millisecond
)

// captureArgs builds the ffmpeg argument list that writes f32le samples of
// cfg.CaptureFormat to stdout.
func captureArgs(cfg Config) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.CaptureFormat.Channels),
		"-ar", strconv.Itoa(cfg.CaptureFormat.SampleRate),
		"-f", "f32le",
		"-",
	}
}

// capture is a running ffmpeg process exposed as an [audio.Microphone].
type capture struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func startCapture(ctx context.Context, cfg Config) (*capture, error) {
	// The process must outlive ctx, which only bounds start-up.
	cmd := exec.Command(cfg.Command, captureArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start %s: %w", cfg.Command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	c := &capture{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}

	select {
	case err := <-waitErr:
		msg := trimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", audio.ErrPermissionDenied, err, msg)
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %s", audio.ErrPermissionDenied, msg)
	case <-ctx.Done():
		_ = c.Close()
		return nil, fmt.Errorf("ffmpeg: open microphone: %w", ctx.Err())
	case <-time.After(startupGrace):
	}
	return c, nil
}

// Read implements [audio.Microphone].
func (c *capture) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

// Close interrupts ffmpeg, escalating to SIGKILL after a grace period.
func (c *capture) Close() error {
	c.stopOnce.Do(func() {
		if c.process != nil {
			_ = c.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-c.waitErr:
			if ok {
				c.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if c.process != nil {
				_ = c.process.Kill()
			}
			if err, ok := <-c.waitErr; ok {
				c.stopErr = normalizeStopErr(err)
			}
		}

		if err := c.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && c.stopErr == nil {
			c.stopErr = err
		}
		if c.stopErr != nil && c.stderr.Len() > 0 {
			c.stopErr = fmt.Errorf("%w: %s", c.stopErr, trimSpace(c.stderr.String()))
		}
	})
	return c.stopErr
}

// normalizeStopErr treats a non-zero exit after our own signal as a clean stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
