package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMisalignedPCM is returned when a PCM payload does not contain a whole
// number of sample frames.
var ErrMisalignedPCM = errors.New("audio: pcm payload is not frame aligned")

// pcmScale maps float samples in [-1, 1] onto the int16 range.
const pcmScale = 32768

// QuantizePCM16 scales a float sample by 32768 and truncates toward zero.
// Values outside the int16 range are clamped rather than wrapped, so a
// full-scale +1.0 sample becomes 32767 instead of flipping sign.
func QuantizePCM16(s float32) int16 {
	v := int32(s * pcmScale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// EncodePCM16 quantizes interleaved float samples into little-endian 16-bit
// signed PCM. The returned slice holds 2 bytes per input sample.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(QuantizePCM16(s)))
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM into a planar [Buffer] in
// format f. Each sample is divided by 32768 and interleaved samples are
// split across f.Channels channels.
func DecodePCM16(pcm []byte, f Format) (*Buffer, error) {
	if f.Channels <= 0 {
		return nil, fmt.Errorf("audio: decode pcm16: invalid channel count %d", f.Channels)
	}
	frameBytes := 2 * f.Channels
	if len(pcm)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes for %d channel(s)", ErrMisalignedPCM, len(pcm), f.Channels)
	}

	frames := len(pcm) / frameBytes
	buf := NewBuffer(f, frames)
	for c := range f.Channels {
		ch := buf.Data[c]
		for i := range frames {
			off := (i*f.Channels + c) * 2
			ch[i] = float32(int16(binary.LittleEndian.Uint16(pcm[off:]))) / pcmScale
		}
	}
	return buf, nil
}

// DecodeFloat32LE converts raw little-endian IEEE-754 float32 samples (the
// ffmpeg "f32le" format) into a slice of samples. Trailing bytes that do not
// form a whole sample are ignored.
func DecodeFloat32LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// Interleave flattens the planar samples of buf into a single interleaved
// slice, ready for [EncodePCM16].
func Interleave(buf *Buffer) []float32 {
	channels := len(buf.Data)
	if channels == 1 {
		return buf.Data[0]
	}
	frames := buf.Frames()
	out := make([]float32, frames*channels)
	for i := range frames {
		for c := range channels {
			out[i*channels+c] = buf.Data[c][i]
		}
	}
	return out
}
