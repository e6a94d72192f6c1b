package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestQuantizePCM16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"truncates toward zero", 0.00004, 1},
		{"negative truncates toward zero", -0.00004, -1},
		{"full scale positive clamps", 1.0, math.MaxInt16},
		{"full scale negative", -1.0, math.MinInt16},
		{"over range clamps", 1.5, math.MaxInt16},
		{"under range clamps", -1.5, math.MinInt16},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := QuantizePCM16(tc.in); got != tc.want {
				t.Errorf("QuantizePCM16(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestEncodePCM16_LittleEndian(t *testing.T) {
	t.Parallel()

	got := EncodePCM16([]float32{0.5, -0.5})
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if v := int16(binary.LittleEndian.Uint16(got[0:])); v != 16384 {
		t.Errorf("sample 0 = %d, want 16384", v)
	}
	if v := int16(binary.LittleEndian.Uint16(got[2:])); v != -16384 {
		t.Errorf("sample 1 = %d, want -16384", v)
	}
}

func TestPCM16_RoundTripWithinQuantizationStep(t *testing.T) {
	t.Parallel()

	in := make([]float32, 4096)
	for i := range in {
		in[i] = float32(math.Sin(float64(i)*0.013)) * 0.999
	}
	in[0], in[1], in[2] = 1.0, -1.0, 0

	buf, err := DecodePCM16(EncodePCM16(in), Mono(16000))
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if buf.Frames() != len(in) {
		t.Fatalf("frames = %d, want %d", buf.Frames(), len(in))
	}
	const step = 1.0 / 32768
	for i, want := range in {
		got := buf.Channel(0)[i]
		if diff := math.Abs(float64(got - want)); diff > step {
			t.Fatalf("sample %d: got %v, want %v (diff %v > %v)", i, got, want, diff, step)
		}
	}
}

func TestDecodePCM16_Deinterleaves(t *testing.T) {
	t.Parallel()

	pcm := EncodePCM16([]float32{0.25, -0.25, 0.5, -0.5})
	buf, err := DecodePCM16(pcm, Format{SampleRate: 24000, Channels: 2})
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if buf.Frames() != 2 {
		t.Fatalf("frames = %d, want 2", buf.Frames())
	}
	if buf.Channel(0)[1] != 0.5 || buf.Channel(1)[1] != -0.5 {
		t.Errorf("channels not split: left=%v right=%v", buf.Channel(0), buf.Channel(1))
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	t.Parallel()

	_, err := DecodePCM16([]byte{1, 2, 3}, Mono(24000))
	if !errors.Is(err, ErrMisalignedPCM) {
		t.Fatalf("err = %v, want ErrMisalignedPCM", err)
	}
}

func TestDecodeFloat32LE(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 9) // 2 samples + 1 stray byte
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-1))
	got := DecodeFloat32LE(raw)
	if len(got) != 2 || got[0] != 0.25 || got[1] != -1 {
		t.Errorf("DecodeFloat32LE = %v, want [0.25 -1]", got)
	}
}

func TestFormat_Durations(t *testing.T) {
	t.Parallel()

	f := Mono(24000)
	if got := f.FrameDuration(12000); got != 500*time.Millisecond {
		t.Errorf("FrameDuration(12000) = %v, want 500ms", got)
	}
	for _, frames := range []int{1, 7, 12000, 24001} {
		if got := f.FramesAt(f.FrameDuration(frames)); got != int64(frames) {
			t.Errorf("FramesAt(FrameDuration(%d)) = %d", frames, got)
		}
	}
	if got := f.String(); got != "24000Hz mono" {
		t.Errorf("String() = %q", got)
	}
}

func TestInterleave(t *testing.T) {
	t.Parallel()

	buf := NewBuffer(Format{SampleRate: 8000, Channels: 2}, 2)
	buf.Data[0][0], buf.Data[0][1] = 1, 2
	buf.Data[1][0], buf.Data[1][1] = 3, 4
	got := Interleave(buf)
	want := []float32{1, 3, 2, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Interleave = %v, want %v", got, want)
		}
	}
}
