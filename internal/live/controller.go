// Package live runs the realtime voice session: it captures the microphone,
// streams PCM16 frames to a remote speech-to-speech model, and plays the
// model's spoken replies gaplessly in arrival order.
//
// A [Controller] owns at most one session at a time. Each session runs a
// single event loop that consumes remote events and captured blocks, so all
// session state is mutated from one goroutine.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/peridot-guide/internal/observe"
	"github.com/MrWong99/peridot-guide/pkg/audio"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
	"github.com/google/uuid"
)

const (
	// DefaultBlockSize is the number of frames per captured block.
	DefaultBlockSize = 4096

	// DefaultCaptureQueue is how many captured blocks may wait for the event
	// loop before new ones are dropped.
	DefaultCaptureQueue = 8
)

// Config holds the fixed parameters of every session a Controller opens.
type Config struct {
	// Instructions is the system prompt sent when the stream opens.
	Instructions string

	// Voice is the prebuilt voice identity of the remote model.
	Voice string

	// Transcribe requests transcripts of both sides of the conversation.
	Transcribe bool

	// BlockSize is the number of frames per outbound block. Default 4096.
	BlockSize int

	// InputFormat is the capture format. Default 16 kHz mono.
	InputFormat audio.Format

	// OutputFormat is the playback format of inbound audio. Default 24 kHz mono.
	OutputFormat audio.Format

	// CaptureQueue bounds the hand-off from the capture callback to the event
	// loop. Default 8.
	CaptureQueue int
}

func (c Config) withDefaults() Config {
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.InputFormat.SampleRate <= 0 {
		c.InputFormat = audio.Mono(16000)
	}
	if c.InputFormat.Channels <= 0 {
		c.InputFormat.Channels = 1
	}
	if c.OutputFormat.SampleRate <= 0 {
		c.OutputFormat = audio.Mono(24000)
	}
	if c.OutputFormat.Channels <= 0 {
		c.OutputFormat.Channels = 1
	}
	if c.CaptureQueue <= 0 {
		c.CaptureQueue = DefaultCaptureQueue
	}
	return c
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics sets the metrics instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithInterruptHandler registers fn to be called from the event loop after an
// interruption has flushed playback. fn must not block.
func WithInterruptHandler(fn func()) Option {
	return func(c *Controller) { c.onInterrupt = fn }
}

// WithTranscriptHandler registers fn to be called from the event loop for
// every transcript fragment. fn must not block.
func WithTranscriptHandler(fn func(s2s.Transcript)) Option {
	return func(c *Controller) { c.onTranscript = fn }
}

// Controller manages the lifecycle of live sessions. It is safe for
// concurrent use. Status transitions are reported in order; onStatus must
// not call back into the Controller.
type Controller struct {
	platform audio.Platform
	provider s2s.Provider
	cfg      Config

	log          *slog.Logger
	metrics      *observe.Metrics
	onInterrupt  func()
	onTranscript func(s2s.Transcript)

	mu      sync.Mutex // guards sess and pending, never held across a handshake
	sess    *session
	pending *session

	statusMu sync.Mutex
	status   Status
}

// New creates a Controller that captures and plays audio through platform and
// talks to provider.
func New(platform audio.Platform, provider s2s.Provider, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		platform: platform,
		provider: provider,
		cfg:      cfg.withDefaults(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Status returns the status of the current or most recent session.
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// Connect tears down any previous session and opens a new one. It reports
// [StatusConnecting] and then either [StatusConnected] once the remote stream
// is open, or [StatusError] on any failure. Later transitions of the session
// are reported to the same onStatus from the event loop.
//
// Connect blocks until the stream is open, fails, or ctx is done. A failed
// attempt releases everything it acquired and returns a [*Error]; there is no
// retry. A Disconnect or a newer Connect issued while the handshake is still
// running cancels the attempt, which then returns an error wrapping
// [context.Canceled].
func (c *Controller) Connect(ctx context.Context, onStatus StatusFunc) error {
	if onStatus == nil {
		onStatus = func(Status, error) {}
	}

	ctx, span := observe.StartSpan(ctx, "live.connect")
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{
		id:       uuid.NewString(),
		c:        c,
		onStatus: onStatus,
		cancel:   cancel,
		blocks:   make(chan []float32, c.cfg.CaptureQueue),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
		settled:  make(chan struct{}),
	}
	s.log = observe.SessionLogger(ctx, c.log, s.id)
	observe.AnnotateSession(span, s.id, c.cfg.InputFormat.SampleRate, c.cfg.OutputFormat.SampleRate)

	c.mu.Lock()
	if c.sess != nil {
		c.sess.shutdown()
		c.sess = nil
	}
	prev := c.pending
	if prev != nil {
		prev.cancel()
		c.report(prev, StatusDisconnected, nil)
	}
	c.pending = s
	start := time.Now()
	c.report(s, StatusConnecting, nil)
	c.mu.Unlock()

	if prev != nil {
		<-prev.settled
	}
	err := s.open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(s.settled)

	if c.pending != s {
		// Superseded; whoever took the slot has already reported for it.
		s.release()
		close(s.loopDone)
		err = setupError("connect", context.Canceled)
		observe.SetSpanResult(span, err)
		return err
	}
	c.pending = nil

	if err != nil {
		s.release()
		close(s.loopDone)
		observe.SetSpanResult(span, err)
		c.metrics.RecordConnect(ctx, time.Since(start), err)
		c.report(s, StatusError, err)
		return err
	}

	s.active.Store(true)
	c.sess = s
	c.metrics.RecordConnect(ctx, time.Since(start), nil)
	c.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("live session connected", "duration", time.Since(start))
	observe.SetSpanResult(span, nil)
	c.report(s, StatusConnected, nil)

	go s.run()
	return nil
}

// Disconnect stops the current session and releases the microphone, both
// audio contexts and the remote stream. Scheduled playback stops immediately.
// It is idempotent and safe to call when no session was ever started.
// [StatusDisconnected] is reported if the session was still connected or
// still handshaking; a pending Connect is cancelled and Disconnect waits
// for it to release what it acquired.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if p := c.pending; p != nil {
		c.pending = nil
		p.cancel()
		c.report(p, StatusDisconnected, nil)
		c.mu.Unlock()
		<-p.settled
		return nil
	}
	defer c.mu.Unlock()

	if c.sess == nil {
		return nil
	}
	s := c.sess
	c.sess = nil
	if s.shutdown() {
		c.report(s, StatusDisconnected, nil)
	}
	return nil
}

// report records st as the controller status and forwards it to the session's
// StatusFunc.
func (c *Controller) report(s *session, st Status, err error) {
	c.statusMu.Lock()
	c.status = st
	c.statusMu.Unlock()

	if err != nil {
		s.log.Warn("live session status", "status", st, "err", err)
	} else {
		s.log.Debug("live session status", "status", st)
	}
	s.onStatus(st, err)
}

// setupError wraps err as a [KindSetup] error for op.
func setupError(op string, err error) *Error {
	return &Error{Kind: KindSetup, Op: op, Err: err}
}

// errClosedDuringSetup is reported when the remote stream ends before it was
// ever ready.
var errClosedDuringSetup = errors.New("stream closed before it was ready")

// awaitReady consumes events until the remote end signals the stream is open.
func awaitReady(ctx context.Context, h s2s.SessionHandle) error {
	events := h.Events()
	for {
		select {
		case <-ctx.Done():
			return setupError("handshake", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				err := h.Err()
				if err == nil {
					err = errClosedDuringSetup
				}
				return setupError("handshake", err)
			}
			switch e := ev.(type) {
			case s2s.Connected:
				return nil
			case s2s.ErrorEvent:
				return setupError("handshake", e.Err)
			case s2s.Closed:
				return setupError("handshake", fmt.Errorf("%w: %s", errClosedDuringSetup, e.Reason))
			}
		}
	}
}
