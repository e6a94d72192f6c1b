// Package audio defines the interfaces and types for local audio capture and
// playback used by the realtime voice session.
//
// The primary abstractions mirror what a host audio stack provides:
//
//   - [Platform]: hands out a [Microphone] and creates audio contexts.
//   - [InputContext]: turns a microphone stream into fixed-size blocks of
//     float samples, delivered through a callback.
//   - [OutputContext]: plays [Buffer] values at scheduled positions on a
//     monotonic playback clock.
//
// Implementations live in adapter packages (e.g., audio/ffmpeg) and in
// audio/mock for tests. This package lives under pkg/ because third-party
// adapters are expected to implement [Platform].
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned by [Platform.OpenMicrophone] when the
	// host refuses access to the capture device.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrContextClosed is returned by context methods called after Close.
	ErrContextClosed = errors.New("audio: context closed")
)

// ContextState is the lifecycle state of an audio [Context].
type ContextState int

const (
	// StateSuspended means the context exists but its clock is not running.
	// Hosts commonly hand out contexts in this state until [Context.Resume].
	StateSuspended ContextState = iota

	// StateRunning means the context is processing audio.
	StateRunning

	// StateClosed means the context has released its resources.
	StateClosed
)

// String returns the human-readable name of the state.
func (s ContextState) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Microphone is an open capture handle. Read yields raw samples in the
// platform's native capture encoding; callers normally hand the Microphone to
// [InputContext.Process] instead of reading it directly.
type Microphone interface {
	Read(p []byte) (int, error)

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}

// Context is the part shared by input and output audio contexts.
type Context interface {
	// Format reports the sample rate and channel count of the context.
	Format() Format

	// State reports the current lifecycle state.
	State() ContextState

	// Resume moves a suspended context into [StateRunning]. Resuming a running
	// context is a no-op. Returns [ErrContextClosed] after Close.
	Resume(ctx context.Context) error

	// Close releases the context. Safe to call more than once.
	Close() error
}

// InputContext processes captured audio in fixed-size blocks.
type InputContext interface {
	Context

	// Process starts reading mic on an internal goroutine and invokes fn once
	// per block of blockSize frames (interleaved float samples in [-1, 1]).
	// fn is called sequentially and must not block. Processing stops when the
	// context is closed or mic returns an error. Process may be called at most
	// once per context.
	Process(mic Microphone, blockSize int, fn func(block []float32)) error
}

// Voice is a handle to a buffer scheduled on an [OutputContext].
type Voice interface {
	// Stop silences the voice immediately. Stopping a finished voice is a no-op.
	Stop()

	// Done is closed when the voice has finished playing or was stopped.
	Done() <-chan struct{}
}

// OutputContext plays buffers on a monotonic playback clock.
type OutputContext interface {
	Context

	// Now returns the current position of the playback clock. The clock starts
	// at zero and only advances while the context is running.
	Now() time.Duration

	// Schedule queues buf to start playing when the clock reaches at. A start
	// time in the past plays immediately. The buffer format must match the
	// context format.
	Schedule(buf *Buffer, at time.Duration) (Voice, error)
}

// Platform is the entry point to the host audio stack.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenMicrophone acquires the capture device. Returns an error wrapping
	// [ErrPermissionDenied] when access is refused.
	OpenMicrophone(ctx context.Context) (Microphone, error)

	// NewInputContext creates a capture-side context running at f.
	NewInputContext(f Format) (InputContext, error)

	// NewOutputContext creates a playback-side context running at f.
	NewOutputContext(f Format) (OutputContext, error)
}
