package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for microphone input, 24000 for model output).
	SampleRate int

	// Channels: 1 for mono. Samples of multi-channel audio are interleaved on
	// the wire and planar inside a [Buffer].
	Channels int
}

// Mono returns a single-channel [Format] at the given sample rate.
func Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1}
}

// FrameDuration returns the playback duration of frames sample frames.
func (f Format) FrameDuration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

// FramesAt converts a clock position into a frame index, rounding to the
// nearest frame so that positions produced by [Format.FrameDuration] map back
// onto the exact frame they were derived from.
func (f Format) FramesAt(d time.Duration) int64 {
	if d <= 0 || f.SampleRate <= 0 {
		return 0
	}
	return (int64(d)*int64(f.SampleRate) + int64(time.Second)/2) / int64(time.Second)
}

// String returns a human-readable representation, e.g. "24000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Buffer is a block of decoded, playable audio. Samples are planar float32
// values in [-1, 1]: Data[c][i] is frame i of channel c.
type Buffer struct {
	Format Format
	Data   [][]float32
}

// NewBuffer allocates a zeroed [Buffer] holding frames frames of f.
func NewBuffer(f Format, frames int) *Buffer {
	data := make([][]float32, f.Channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	return &Buffer{Format: f, Data: data}
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return b.Format.FrameDuration(b.Frames())
}

// Channel returns the samples of channel c.
func (b *Buffer) Channel(c int) []float32 {
	return b.Data[c]
}
