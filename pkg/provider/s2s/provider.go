// Package s2s defines the Provider interface for realtime speech-to-speech
// backends.
//
// An S2S provider wraps a bidirectional voice model: the caller streams
// microphone audio up as base64 PCM [Blob] values and receives a stream of
// tagged [Event] values back (spoken audio, interruptions, transcripts and the
// terminal close or error). Sessions are long-lived (seconds to minutes).
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"
)

var (
	// ErrNotReady is returned by [SessionHandle.SendRealtimeInput] before the
	// remote end has signalled [Connected].
	ErrNotReady = errors.New("s2s: session not ready")

	// ErrClosed is returned by [SessionHandle.SendRealtimeInput] once the
	// session has been closed locally or by the remote end.
	ErrClosed = errors.New("s2s: session closed")

	// ErrBackpressure is returned by [SessionHandle.SendRealtimeInput] when the
	// outbound queue is full. The blob is dropped.
	ErrBackpressure = errors.New("s2s: send queue full")
)

// Blob is a chunk of media sent to the model.
type Blob struct {
	// Data is the base64-encoded payload.
	Data string

	// MIMEType tags the payload, e.g. "audio/pcm;rate=16000".
	MIMEType string
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Voice names the prebuilt voice the model speaks with. Empty selects the
	// provider default.
	Voice string

	// Instructions is the system-level prompt that defines the assistant's
	// persona and knowledge.
	Instructions string

	// Transcribe asks the provider to emit [Transcript] events for both the
	// user's speech and the model's spoken output.
	Transcribe bool
}

// Capabilities describes static properties of the S2S provider.
// The values are assumed constant for the lifetime of the Provider instance.
type Capabilities struct {
	// Model is the identifier of the model sessions are opened against.
	Model string

	// InputSampleRate is the sample rate of PCM audio the model expects.
	InputSampleRate int

	// OutputSampleRate is the sample rate of PCM audio the model produces.
	OutputSampleRate int

	// MaxSessionDurationMs is the hard upper bound on session lifetime in
	// milliseconds, as imposed by the provider. Zero means no documented limit.
	MaxSessionDurationMs int

	// Voices lists the prebuilt voice names available for this provider.
	Voices []string
}

// SessionHandle represents an open S2S session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// The session sits on the audio hot path: every method must return quickly.
// All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendRealtimeInput queues blob for delivery to the model without blocking.
	// It returns [ErrNotReady] before [Connected] has been emitted, [ErrClosed]
	// after the session ended and [ErrBackpressure] when the outbound queue is
	// full. In every error case the blob is dropped.
	SendRealtimeInput(blob Blob) error

	// Events returns the channel of session events. The first event is either
	// [Connected] or a terminal one. The channel is closed after the terminal
	// [Closed] or [ErrorEvent] has been delivered, or after Close.
	Events() <-chan Event

	// Err returns the error that ended the session, or nil if it ended cleanly
	// or is still running.
	Err() error

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime S2S backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect dials the backend and sends the session configuration. It returns
	// once the transport is open; readiness is signalled later through a
	// [Connected] event. Returns an error if the transport cannot be
	// established (authentication failure, unreachable host, ctx cancelled).
	// The caller owns the SessionHandle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider's model.
	Capabilities() Capabilities
}
