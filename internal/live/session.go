package live

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"mime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/peridot-guide/pkg/audio"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// session is one live connection. Its handles, scheduler and cursor are only
// touched by Connect (before the loop starts), the event loop, and release.
// Connect releases a session it abandons before closing settled.
type session struct {
	id       string
	c        *Controller
	log      *slog.Logger
	onStatus StatusFunc
	cancel   context.CancelFunc // aborts a pending handshake

	mic    audio.Microphone
	in     audio.InputContext
	out    audio.OutputContext
	handle s2s.SessionHandle
	sched  *Scheduler

	blocks   chan []float32
	stop     chan struct{}
	loopDone chan struct{}
	settled  chan struct{} // closed once Connect is done with the session

	active      atomic.Bool
	stopOnce    sync.Once
	releaseOnce sync.Once
}

// open acquires the microphone, both audio contexts and the remote stream,
// then starts capture once the stream is ready. On error the caller releases
// whatever was acquired.
func (s *session) open(ctx context.Context) error {
	cfg := s.c.cfg
	var err error

	if s.mic, err = s.c.platform.OpenMicrophone(ctx); err != nil {
		return setupError("open microphone", err)
	}
	if s.in, err = s.c.platform.NewInputContext(cfg.InputFormat); err != nil {
		return setupError("create input context", err)
	}
	if s.out, err = s.c.platform.NewOutputContext(cfg.OutputFormat); err != nil {
		return setupError("create output context", err)
	}
	if err := resume(ctx, s.in); err != nil {
		return setupError("resume input context", err)
	}
	if err := resume(ctx, s.out); err != nil {
		return setupError("resume output context", err)
	}
	s.sched = NewScheduler(s.out)

	s.handle, err = s.c.provider.Connect(ctx, s2s.SessionConfig{
		Voice:        cfg.Voice,
		Instructions: cfg.Instructions,
		Transcribe:   cfg.Transcribe,
	})
	if err != nil {
		return setupError("open stream", err)
	}
	if err := awaitReady(ctx, s.handle); err != nil {
		return err
	}

	if err := s.in.Process(s.mic, cfg.BlockSize, s.capture); err != nil {
		return setupError("start capture", err)
	}
	return nil
}

// resume starts a context the platform handed out suspended.
func resume(ctx context.Context, c audio.Context) error {
	if c.State() != audio.StateSuspended {
		return nil
	}
	return c.Resume(ctx)
}

// capture is the platform's block callback. It never blocks: when the event
// loop falls behind the block is dropped. Blocks delivered before Connect
// published the session, or after it ended, count as not_ready drops.
func (s *session) capture(block []float32) {
	if !s.active.Load() {
		s.c.metrics.RecordFrameDropped(context.Background(), "not_ready")
		return
	}
	select {
	case s.blocks <- slices.Clone(block):
	default:
		s.c.metrics.RecordFrameDropped(context.Background(), "queue_full")
	}
}

// run is the session event loop.
func (s *session) run() {
	defer close(s.loopDone)

	events := s.handle.Events()
	for {
		select {
		case <-s.stop:
			return
		case block := <-s.blocks:
			if s.active.Load() {
				s.send(block)
			}
		case ev, ok := <-events:
			if !s.active.Load() {
				return
			}
			if !ok {
				err := cmp.Or(s.handle.Err(), s2s.ErrClosed)
				s.end(StatusError, &Error{Kind: KindTransport, Op: "receive", Err: err})
				return
			}
			if s.handleEvent(ev) {
				return
			}
		}
	}
}

// handleEvent applies one remote event. It reports true when the event ended
// the session.
func (s *session) handleEvent(ev s2s.Event) bool {
	switch e := ev.(type) {
	case s2s.AudioChunk:
		s.play(e)
	case s2s.Interrupted:
		n := s.sched.Interrupt()
		s.c.metrics.RecordInterruption(context.Background())
		s.log.Debug("live: playback interrupted", "stopped", n)
		if s.c.onInterrupt != nil {
			s.c.onInterrupt()
		}
	case s2s.Transcript:
		if s.c.onTranscript != nil {
			s.c.onTranscript(e)
		}
	case s2s.TurnComplete:
		s.log.Debug("live: turn complete")
	case s2s.Closed:
		s.log.Info("live: stream closed by remote", "reason", e.Reason)
		s.end(StatusDisconnected, nil)
		return true
	case s2s.ErrorEvent:
		s.end(StatusError, &Error{Kind: KindTransport, Op: "stream", Err: e.Err})
		return true
	}
	return false
}

// send encodes and forwards one captured block. Frames the stream cannot take
// are dropped, never queued.
func (s *session) send(block []float32) {
	ctx := context.Background()
	err := s.handle.SendRealtimeInput(EncodeBlock(block, s.c.cfg.InputFormat.SampleRate))
	if err == nil {
		s.c.metrics.RecordFrameSent(ctx)
		return
	}

	reason := "error"
	switch {
	case errors.Is(err, s2s.ErrNotReady):
		reason = "not_ready"
	case errors.Is(err, s2s.ErrBackpressure):
		reason = "backpressure"
	case errors.Is(err, s2s.ErrClosed):
		reason = "closed"
	}
	s.c.metrics.RecordFrameDropped(ctx, reason)
	s.log.Debug("live: frame dropped", "reason", reason, "err", &Error{Kind: KindSend, Op: "send frame", Err: err})
}

// play decodes an inbound chunk and appends it to the playback timeline. A
// chunk that cannot be played is skipped; the session continues.
func (s *session) play(chunk s2s.AudioChunk) {
	ctx := context.Background()
	f := s.c.cfg.OutputFormat

	if rate, ok := pcmRate(chunk.MIMEType); ok && rate != f.SampleRate {
		s.dropChunk("format", &Error{Kind: KindDecode, Op: "decode chunk", Err: errors.New("unexpected mime type " + chunk.MIMEType)})
		return
	}
	buf, err := DecodeChunk(chunk.Data, f)
	if err != nil {
		s.dropChunk("decode", &Error{Kind: KindDecode, Op: "decode chunk", Err: err})
		return
	}
	start, _, err := s.sched.Schedule(buf)
	if err != nil {
		s.dropChunk("schedule", &Error{Kind: KindDecode, Op: "schedule chunk", Err: err})
		return
	}
	s.c.metrics.RecordChunkScheduled(ctx)
	s.log.Debug("live: chunk scheduled", "start", start, "duration", buf.Duration())
}

func (s *session) dropChunk(reason string, err error) {
	s.c.metrics.RecordChunkDropped(context.Background(), reason)
	s.log.Warn("live: inbound chunk skipped", "reason", reason, "err", err)
}

// pcmRate extracts the rate parameter of an "audio/pcm;rate=N" MIME type.
func pcmRate(mimeType string) (int, bool) {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, false
	}
	v, ok := params["rate"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// deactivate marks the session stopped. Only the first caller gets true.
func (s *session) deactivate() bool {
	if !s.active.CompareAndSwap(true, false) {
		return false
	}
	s.c.metrics.ActiveSessions.Add(context.Background(), -1)
	return true
}

// end is called from the event loop when the remote side finished the
// session. It releases everything before reporting st.
func (s *session) end(st Status, err error) {
	if !s.deactivate() {
		return
	}
	s.release()
	s.c.report(s, st, err)
}

// shutdown stops the event loop and releases the session. It reports whether
// the session was still active, i.e. whether this call ended it.
func (s *session) shutdown() bool {
	ended := s.deactivate()
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.loopDone
	s.release()
	return ended
}

// release closes every handle the session holds. Safe to call more than once
// and with partially opened sessions.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		closeLogged := func(what string, fn func() error) {
			if err := fn(); err != nil {
				s.log.Debug("live: release "+what, "err", err)
			}
		}
		if s.mic != nil {
			closeLogged("microphone", s.mic.Close)
		}
		if s.in != nil {
			closeLogged("input context", s.in.Close)
		}
		if s.sched != nil {
			s.sched.Interrupt()
		}
		if s.out != nil {
			closeLogged("output context", s.out.Close)
		}
		if s.handle != nil {
			closeLogged("stream", s.handle.Close)
		}
	})
}
