// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to drive the event stream and inspect what the code under test
// sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(s2s.Connected{})
//	sess.Emit(s2s.AudioChunk{Data: b64, MIMEType: "audio/pcm;rate=24000"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect returns
	// a fresh Session and appends it to Sessions.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Ready makes sessions created by Connect emit [s2s.Connected] straight
	// away, as a healthy remote end would.
	Ready bool

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	// Sessions records the sessions created by Connect when Session is nil.
	Sessions []*Session

	// CapabilitiesCallCount is the number of times Capabilities was called.
	CapabilitiesCallCount int
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	s := NewSession()
	if p.Ready {
		s.Emit(s2s.Connected{})
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Capabilities records the call and returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ProviderCapabilities
}

// Calls returns a snapshot of ConnectCalls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

// LastSession returns the most recent session created by Connect, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
	p.Sessions = nil
	p.CapabilitiesCallCount = 0
}

// Ensure Provider implements s2s.Provider at compile time.
var _ s2s.Provider = (*Provider)(nil)

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of s2s.SessionHandle. Like the real
// providers it rejects input until [s2s.Connected] has been emitted and after
// the session has ended.
type Session struct {
	mu     sync.Mutex
	events chan s2s.Event
	ready  bool
	ended  bool // terminal event emitted or Close called
	closed bool // events channel closed

	// SendErr, if non-nil, is returned by SendRealtimeInput once the session is
	// ready. The blob is not recorded.
	SendErr error

	// ErrValue is returned by Err.
	ErrValue error

	// Sent records every blob accepted by SendRealtimeInput in order.
	Sent []s2s.Blob

	// Rejected counts blobs refused by SendRealtimeInput.
	Rejected int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session with a generously buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 256)}
}

// Emit delivers ev to the consumer. [s2s.Connected] marks the session ready;
// [s2s.Closed] and [s2s.ErrorEvent] end it and close the channel. Reports
// false if the session had already ended.
func (s *Session) Emit(ev s2s.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	switch e := ev.(type) {
	case s2s.Connected:
		s.ready = true
	case s2s.ErrorEvent:
		s.ErrValue = e.Err
		s.ended = true
	case s2s.Closed:
		s.ended = true
	}
	s.events <- ev
	if s.ended {
		s.closed = true
		close(s.events)
	}
	return true
}

// SendRealtimeInput implements s2s.SessionHandle.
func (s *Session) SendRealtimeInput(b s2s.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ended:
		s.Rejected++
		return s2s.ErrClosed
	case !s.ready:
		s.Rejected++
		return s2s.ErrNotReady
	case s.SendErr != nil:
		s.Rejected++
		return s.SendErr
	}
	s.Sent = append(s.Sent, b)
	return nil
}

// Events implements s2s.SessionHandle.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Err implements s2s.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrValue
}

// Close implements s2s.SessionHandle. The events channel is closed without a
// terminal event, as with a real provider closed locally.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	s.ended = true
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// SentBlobs returns a snapshot of Sent. Thread-safe.
func (s *Session) SentBlobs() []s2s.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]s2s.Blob(nil), s.Sent...)
}

// Counts returns the number of rejected blobs and Close calls. Thread-safe.
func (s *Session) Counts() (rejected, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rejected, s.CloseCallCount
}

// Ensure Session implements s2s.SessionHandle at compile time.
var _ s2s.SessionHandle = (*Session)(nil)
