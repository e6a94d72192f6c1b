// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Microphone], [audio.InputContext] and [audio.OutputContext]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	platform := &mock.Platform{}
//	// ... hand platform to the code under test, then:
//	platform.LastInput().Emit(make([]float32, 4096)) // simulate one captured block
//	platform.LastOutput().Advance(250 * time.Millisecond)
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// Mic, if non-nil, is returned by every OpenMicrophone call. Otherwise a
	// fresh Microphone is created per call.
	Mic *Microphone

	// Input, if non-nil, is returned by every NewInputContext call. Otherwise
	// a fresh InputContext is created per call.
	Input *InputContext

	// Output, if non-nil, is returned by every NewOutputContext call.
	// Otherwise a fresh OutputContext is created per call.
	Output *OutputContext

	// MicErr, if non-nil, is returned by OpenMicrophone.
	MicErr error

	// InputErr, if non-nil, is returned by NewInputContext.
	InputErr error

	// OutputErr, if non-nil, is returned by NewOutputContext.
	OutputErr error

	// OpenMicrophoneCalls counts calls to OpenMicrophone.
	OpenMicrophoneCalls int

	// InputFormats records the formats passed to NewInputContext.
	InputFormats []audio.Format

	// OutputFormats records the formats passed to NewOutputContext.
	OutputFormats []audio.Format

	// Mics, Inputs and Outputs record every handle handed out, in order.
	Mics    []*Microphone
	Inputs  []*InputContext
	Outputs []*OutputContext
}

// OpenMicrophone implements [audio.Platform].
func (p *Platform) OpenMicrophone(_ context.Context) (audio.Microphone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenMicrophoneCalls++
	if p.MicErr != nil {
		return nil, p.MicErr
	}
	m := p.Mic
	if m == nil {
		m = &Microphone{}
	}
	p.Mics = append(p.Mics, m)
	return m, nil
}

// NewInputContext implements [audio.Platform].
func (p *Platform) NewInputContext(f audio.Format) (audio.InputContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InputFormats = append(p.InputFormats, f)
	if p.InputErr != nil {
		return nil, p.InputErr
	}
	c := p.Input
	if c == nil {
		c = &InputContext{}
	}
	c.setFormat(f)
	p.Inputs = append(p.Inputs, c)
	return c, nil
}

// NewOutputContext implements [audio.Platform].
func (p *Platform) NewOutputContext(f audio.Format) (audio.OutputContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OutputFormats = append(p.OutputFormats, f)
	if p.OutputErr != nil {
		return nil, p.OutputErr
	}
	c := p.Output
	if c == nil {
		c = &OutputContext{}
	}
	c.setFormat(f)
	p.Outputs = append(p.Outputs, c)
	return c, nil
}

// LastMic returns the most recently opened microphone, or nil.
func (p *Platform) LastMic() *Microphone {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Mics) == 0 {
		return nil
	}
	return p.Mics[len(p.Mics)-1]
}

// LastInput returns the most recently created input context, or nil.
func (p *Platform) LastInput() *InputContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Inputs) == 0 {
		return nil
	}
	return p.Inputs[len(p.Inputs)-1]
}

// LastOutput returns the most recently created output context, or nil.
func (p *Platform) LastOutput() *OutputContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Outputs) == 0 {
		return nil
	}
	return p.Outputs[len(p.Outputs)-1]
}

// Ensure Platform implements audio.Platform at compile time.
var _ audio.Platform = (*Platform)(nil)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone]. Read blocks until
// Close and then returns io.EOF.
type Microphone struct {
	mu     sync.Mutex
	once   sync.Once
	closed chan struct{}

	// CloseCalls counts calls to Close.
	CloseCalls int
}

func (m *Microphone) closedCh() chan struct{} {
	m.once.Do(func() { m.closed = make(chan struct{}) })
	return m.closed
}

// Read implements [audio.Microphone].
func (m *Microphone) Read(_ []byte) (int, error) {
	<-m.closedCh()
	return 0, io.EOF
}

// Close implements [audio.Microphone].
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	if m.CloseCalls == 1 {
		close(m.closedCh())
	}
	return nil
}

// CloseCount returns the number of Close calls.
func (m *Microphone) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

// Closed reports whether Close has been called at least once.
func (m *Microphone) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls > 0
}

// ─── shared context state ─────────────────────────────────────────────────────

type contextState struct {
	mu sync.Mutex

	format audio.Format

	// state is the current lifecycle state. The zero value is
	// [audio.StateSuspended], matching hosts that hand out suspended contexts.
	state audio.ContextState

	// ResumeErr, if non-nil, is returned by Resume.
	ResumeErr error

	// ResumeCalls counts calls to Resume.
	ResumeCalls int

	// CloseCalls counts calls to Close.
	CloseCalls int
}

func (c *contextState) setFormat(f audio.Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = f
}

func (c *contextState) getFormat() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

func (c *contextState) getState() audio.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *contextState) resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResumeCalls++
	if c.ResumeErr != nil {
		return c.ResumeErr
	}
	if c.state == audio.StateClosed {
		return audio.ErrContextClosed
	}
	c.state = audio.StateRunning
	return nil
}

// close marks the context closed and reports whether this was the first call.
func (c *contextState) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	first := c.state != audio.StateClosed
	c.state = audio.StateClosed
	return first
}

// SetState forces the lifecycle state, e.g. to hand out a running context.
func (c *contextState) SetState(st audio.ContextState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = st
}

// Counts returns ResumeCalls and CloseCalls. Thread-safe.
func (c *contextState) Counts() (resumes, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ResumeCalls, c.CloseCalls
}

// ─── InputContext ─────────────────────────────────────────────────────────────

// InputContext is a mock implementation of [audio.InputContext]. Process does
// not read the microphone; tests drive capture with [InputContext.Emit].
type InputContext struct {
	contextState

	fn func([]float32)

	// ProcessErr, if non-nil, is returned by Process.
	ProcessErr error

	// BlockSize records the block size passed to Process.
	BlockSize int
}

// Format implements [audio.Context].
func (c *InputContext) Format() audio.Format { return c.getFormat() }

// State implements [audio.Context].
func (c *InputContext) State() audio.ContextState { return c.getState() }

// Resume implements [audio.Context].
func (c *InputContext) Resume(_ context.Context) error { return c.resume() }

// Close implements [audio.Context].
func (c *InputContext) Close() error {
	c.close()
	return nil
}

// Process implements [audio.InputContext].
func (c *InputContext) Process(_ audio.Microphone, blockSize int, fn func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ProcessErr != nil {
		return c.ProcessErr
	}
	c.BlockSize = blockSize
	c.fn = fn
	return nil
}

// Emit delivers block to the registered Process callback, as if the host had
// captured it. Blocks emitted after Close, or before Process, are ignored.
// Reports whether the block was delivered.
func (c *InputContext) Emit(block []float32) bool {
	c.mu.Lock()
	fn := c.fn
	closed := c.state == audio.StateClosed
	c.mu.Unlock()
	if fn == nil || closed {
		return false
	}
	fn(block)
	return true
}

// Processing reports whether Process has registered a callback.
func (c *InputContext) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fn != nil
}

var _ audio.InputContext = (*InputContext)(nil)

// ─── OutputContext ────────────────────────────────────────────────────────────

// ScheduleCall records a single invocation of OutputContext.Schedule.
type ScheduleCall struct {
	Buffer *audio.Buffer
	At     time.Duration
	Voice  *Voice
}

// OutputContext is a mock implementation of [audio.OutputContext] with a
// manually driven clock.
type OutputContext struct {
	contextState

	now time.Duration

	// ScheduleErr, if non-nil, is returned by Schedule.
	ScheduleErr error

	// ScheduleCalls records every call to Schedule in order.
	ScheduleCalls []ScheduleCall
}

// Format implements [audio.Context].
func (c *OutputContext) Format() audio.Format { return c.getFormat() }

// State implements [audio.Context].
func (c *OutputContext) State() audio.ContextState { return c.getState() }

// Resume implements [audio.Context].
func (c *OutputContext) Resume(_ context.Context) error { return c.resume() }

// Close implements [audio.Context]. Every voice still playing is stopped.
func (c *OutputContext) Close() error {
	if !c.close() {
		return nil
	}
	for _, v := range c.Voices() {
		v.Stop()
	}
	return nil
}

// Now implements [audio.OutputContext].
func (c *OutputContext) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetNow moves the clock to d.
func (c *OutputContext) SetNow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}

// Advance moves the clock forward by d and finishes every voice whose
// scheduled end is at or before the new clock position.
func (c *OutputContext) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	now := c.now
	calls := append([]ScheduleCall(nil), c.ScheduleCalls...)
	c.mu.Unlock()

	for _, call := range calls {
		start := max(call.At, 0)
		if start+call.Buffer.Duration() <= now {
			call.Voice.Finish()
		}
	}
}

// Schedule implements [audio.OutputContext].
func (c *OutputContext) Schedule(buf *audio.Buffer, at time.Duration) (audio.Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ScheduleErr != nil {
		return nil, c.ScheduleErr
	}
	if c.state == audio.StateClosed {
		return nil, audio.ErrContextClosed
	}
	v := newVoice()
	c.ScheduleCalls = append(c.ScheduleCalls, ScheduleCall{Buffer: buf, At: at, Voice: v})
	return v, nil
}

// Calls returns a snapshot of ScheduleCalls. Thread-safe.
func (c *OutputContext) Calls() []ScheduleCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ScheduleCall(nil), c.ScheduleCalls...)
}

// Voices returns the voices created by Schedule, in order. Thread-safe.
func (c *OutputContext) Voices() []*Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Voice, len(c.ScheduleCalls))
	for i, call := range c.ScheduleCalls {
		out[i] = call.Voice
	}
	return out
}

var _ audio.OutputContext = (*OutputContext)(nil)

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock implementation of [audio.Voice].
type Voice struct {
	mu       sync.Mutex
	done     chan struct{}
	ended    bool
	stopped  bool
	stopCall int
}

func newVoice() *Voice {
	return &Voice{done: make(chan struct{})}
}

// Stop implements [audio.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopCall++
	if v.ended {
		return
	}
	v.ended = true
	v.stopped = true
	close(v.done)
}

// Finish simulates natural completion of playback.
func (v *Voice) Finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ended {
		return
	}
	v.ended = true
	close(v.done)
}

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stopped reports whether the voice was cut short by Stop.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// StopCalls returns the number of Stop calls.
func (v *Voice) StopCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopCall
}

var _ audio.Voice = (*Voice)(nil)
