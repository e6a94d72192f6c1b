package live

import (
	"errors"
	"fmt"
)

// Status is the connection state of a live session as seen by the caller.
type Status int

const (
	// StatusDisconnected means no session is active.
	StatusDisconnected Status = iota

	// StatusConnecting means Connect is acquiring devices and opening the
	// remote stream.
	StatusConnecting

	// StatusConnected means the remote stream is open and audio is flowing.
	StatusConnected

	// StatusError means the session failed. It is terminal for that session;
	// a new Connect starts over.
	StatusError
)

// String returns the lowercase name used in logs and the CLI.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusFunc receives status transitions. err is non-nil only with
// [StatusError] and is always a [*Error].
//
// The function is called from the goroutine calling Connect or Disconnect,
// or from the session's event loop. It must not block and must not call
// [Controller.Disconnect] or [Controller.Connect]; doing so deadlocks.
type StatusFunc func(status Status, err error)

// ErrorKind classifies a session failure.
type ErrorKind int

const (
	// KindSetup covers failures while connecting: microphone permission,
	// audio context creation and the remote handshake.
	KindSetup ErrorKind = iota + 1

	// KindTransport covers the remote stream failing after it was open.
	KindTransport

	// KindSend covers an outbound frame that could not be sent. The frame is
	// dropped and the session continues.
	KindSend

	// KindDecode covers an inbound chunk that could not be decoded or
	// scheduled. The chunk is skipped and the session continues.
	KindDecode
)

// String returns the lowercase name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindTransport:
		return "transport"
	case KindSend:
		return "send"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the structured error reported with [StatusError] and returned by
// [Controller.Connect].
type Error struct {
	Kind ErrorKind

	// Op names the step that failed, e.g. "open microphone" or "handshake".
	Op string

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("live: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the [ErrorKind] of err, or 0 if err is not a [*Error].
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
