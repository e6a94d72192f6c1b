package ffmpeg

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

// quantum is the length of audio rendered per tick of the timeline.
const quantum = 20 * time.Millisecond

// sink receives rendered little-endian PCM16.
type sink interface {
	io.WriteCloser
}

// voice is a buffer placed on the output timeline.
type voice struct {
	ctx   *outputContext
	buf   *audio.Buffer
	start int64 // first frame on the timeline
	seq   uint64

	done    chan struct{}
	stopped bool // guarded by ctx.mu
}

func (v *voice) end() int64 { return v.start + int64(v.buf.Frames()) }

// Stop implements [audio.Voice].
func (v *voice) Stop() {
	v.ctx.mu.Lock()
	defer v.ctx.mu.Unlock()
	v.finishLocked()
}

// Done implements [audio.Voice].
func (v *voice) Done() <-chan struct{} { return v.done }

// finishLocked marks the voice ended. Must be called with ctx.mu held.
func (v *voice) finishLocked() {
	if v.stopped {
		return
	}
	v.stopped = true
	close(v.done)
}

// outputContext mixes scheduled voices into a software timeline and streams
// the result to a sink in real time.
type outputContext struct {
	format  audio.Format
	log     *slog.Logger
	newSink func() (sink, error)

	mu      sync.Mutex
	state   audio.ContextState
	frames  int64     // frames rendered so far; the playback clock
	pending voiceHeap // voices whose start frame has not been reached
	active  []*voice  // voices overlapping the current render position
	seq     uint64
	sink    sink

	stop     chan struct{}
	loopDone chan struct{}
}

func newOutputContext(f audio.Format, newSink func() (sink, error), log *slog.Logger) *outputContext {
	return &outputContext{
		format:  f,
		log:     log,
		newSink: newSink,
		state:   audio.StateSuspended,
	}
}

func (c *outputContext) Format() audio.Format { return c.format }

func (c *outputContext) State() audio.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Now implements [audio.OutputContext].
func (c *outputContext) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format.FrameDuration(int(c.frames))
}

// Resume starts the player and the render loop.
func (c *outputContext) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case audio.StateClosed:
		return audio.ErrContextClosed
	case audio.StateRunning:
		return nil
	}

	s, err := c.newSink()
	if err != nil {
		return fmt.Errorf("ffmpeg: resume output: %w", err)
	}
	c.sink = s
	c.state = audio.StateRunning
	c.stop = make(chan struct{})
	c.loopDone = make(chan struct{})
	go c.renderLoop(s, c.stop, c.loopDone)
	return nil
}

// Close stops the render loop, closes the player and ends every voice.
func (c *outputContext) Close() error {
	c.mu.Lock()
	if c.state == audio.StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = audio.StateClosed
	stop, loopDone, s := c.stop, c.loopDone, c.sink
	c.sink = nil
	for _, v := range c.active {
		v.finishLocked()
	}
	for _, v := range c.pending {
		v.finishLocked()
	}
	c.active, c.pending = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-loopDone
	}
	if s != nil {
		if err := s.Close(); err != nil {
			return fmt.Errorf("ffmpeg: close output: %w", err)
		}
	}
	return nil
}

// Schedule implements [audio.OutputContext]. A start time before the current
// clock position is moved up to it.
func (c *outputContext) Schedule(buf *audio.Buffer, at time.Duration) (audio.Voice, error) {
	if buf.Format != c.format {
		return nil, fmt.Errorf("ffmpeg: schedule: buffer format %s does not match context format %s", buf.Format, c.format)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == audio.StateClosed {
		return nil, audio.ErrContextClosed
	}
	c.seq++
	v := &voice{
		ctx:   c,
		buf:   buf,
		start: max(c.format.FramesAt(at), c.frames),
		seq:   c.seq,
		done:  make(chan struct{}),
	}
	heap.Push(&c.pending, v)
	return v, nil
}

func (c *outputContext) renderLoop(s sink, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	n := c.format.FramesAt(quantum)
	ticker := time.NewTicker(quantum)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		pcm := audio.EncodePCM16(c.render(int(n)))
		if _, err := s.Write(pcm); err != nil {
			c.log.Warn("ffmpeg: player write failed, output stopped", "err", err)
			return
		}
	}
}

// render mixes the next n frames of the timeline into an interleaved slice and
// advances the clock. Voices that end within the rendered range are finished.
func (c *outputContext) render(n int) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := c.format.Channels
	out := make([]float32, n*channels)
	from, to := c.frames, c.frames+int64(n)

	for c.pending.Len() > 0 && c.pending[0].start < to {
		v := heap.Pop(&c.pending).(*voice)
		if !v.stopped {
			c.active = append(c.active, v)
		}
	}

	kept := c.active[:0]
	for _, v := range c.active {
		if v.stopped {
			continue
		}
		lo, hi := max(from, v.start), min(to, v.end())
		for f := lo; f < hi; f++ {
			src := int(f - v.start)
			dst := int(f-from) * channels
			for ch := range channels {
				out[dst+ch] += v.buf.Data[ch][src]
			}
		}
		if v.end() <= to {
			v.finishLocked()
			continue
		}
		kept = append(kept, v)
	}
	clear(c.active[len(kept):])
	c.active = kept
	c.frames = to

	for i, s := range out {
		out[i] = min(max(s, -1), 1)
	}
	return out
}

// playerArgs returns the arguments that make cmd read raw s16le audio in f
// from stdin.
func playerArgs(cmd string, f audio.Format) []string {
	rate, ch := strconv.Itoa(f.SampleRate), strconv.Itoa(f.Channels)
	if cmd == "aplay" {
		return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch, "-"}
	}
	return []string{
		"-hide_banner",
		"-loglevel", "quiet",
		"-nodisp",
		"-autoexit",
		"-f", "s16le",
		"-ar", rate,
		"-ac", ch,
		"-i", "-",
	}
}

// player is a running PCM player process fed through stdin.
type player struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	once  sync.Once
	err   error
}

func startPlayer(command string, f audio.Format) (sink, error) {
	cmd := exec.Command(command, playerArgs(command, f)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("player stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}
	return &player{cmd: cmd, stdin: stdin}, nil
}

func (p *player) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes stdin so the player drains and exits, killing it if it lingers.
func (p *player) Close() error {
	p.once.Do(func() {
		_ = p.stdin.Close()
		waitErr := make(chan error, 1)
		go func() { waitErr <- p.cmd.Wait() }()
		select {
		case err := <-waitErr:
			p.err = normalizeStopErr(err)
		case <-time.After(stopGrace):
			_ = p.cmd.Process.Kill()
			p.err = normalizeStopErr(<-waitErr)
		}
	})
	return p.err
}
