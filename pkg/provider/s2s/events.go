package s2s

import "fmt"

// Event is a message received from an S2S session. The concrete type is one
// of [Connected], [AudioChunk], [Interrupted], [TurnComplete], [Transcript],
// [Closed] or [ErrorEvent]; consumers switch on it.
type Event interface {
	isEvent()
}

// Connected is emitted once, when the remote end accepts the session
// configuration. Audio may be sent from this point on.
type Connected struct{}

// AudioChunk carries a fragment of the model's spoken reply.
type AudioChunk struct {
	// Data is the base64-encoded PCM16 little-endian payload, exactly as
	// received from the wire.
	Data string

	// MIMEType describes the payload, e.g. "audio/pcm;rate=24000".
	MIMEType string
}

// Interrupted signals that the model detected the user talking over it. Any
// audio still queued for playback is stale and should be discarded.
type Interrupted struct{}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// Role identifies the speaker of a [Transcript].
type Role string

const (
	// RoleUser is the person at the microphone.
	RoleUser Role = "user"

	// RoleModel is the remote voice model.
	RoleModel Role = "model"
)

// Transcript carries recognised text for either side of the conversation.
type Transcript struct {
	Role Role
	Text string
}

// Closed is the terminal event for a session the remote end closed normally.
type Closed struct {
	// Reason is the close reason reported by the remote end, if any.
	Reason string
}

// ErrorEvent is the terminal event for a session that failed.
type ErrorEvent struct {
	Err error
}

func (Connected) isEvent()    {}
func (AudioChunk) isEvent()   {}
func (Interrupted) isEvent()  {}
func (TurnComplete) isEvent() {}
func (Transcript) isEvent()   {}
func (Closed) isEvent()       {}
func (ErrorEvent) isEvent()   {}

// String implements [fmt.Stringer] for log output.
func (t Transcript) String() string {
	return fmt.Sprintf("%s: %s", t.Role, t.Text)
}

// Error implements the error interface so an ErrorEvent can be returned or
// wrapped directly.
func (e ErrorEvent) Error() string {
	if e.Err == nil {
		return "s2s: session error"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e ErrorEvent) Unwrap() error { return e.Err }
