package live

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/MrWong99/peridot-guide/pkg/audio"
)

func TestEncodeBlock(t *testing.T) {
	t.Parallel()

	block := make([]float32, 4096)
	block[0] = 0.5
	block[1] = -1

	blob := EncodeBlock(block, 16000)
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q, want audio/pcm;rate=16000", blob.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if len(raw) != 8192 {
		t.Fatalf("payload = %d bytes, want 8192", len(raw))
	}
	// 0.5 -> 16384 (0x4000), -1 -> -32768 (0x8000), little-endian.
	if raw[0] != 0x00 || raw[1] != 0x40 || raw[2] != 0x00 || raw[3] != 0x80 {
		t.Errorf("first samples = % x, want 00 40 00 80", raw[:4])
	}
}

func TestDecodeChunk(t *testing.T) {
	t.Parallel()

	f := audio.Mono(24000)
	in := []float32{0.25, -0.25, 0.5}
	blob := EncodeBlock(in, 24000)

	buf, err := DecodeChunk(blob.Data, f)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if buf.Format != f {
		t.Errorf("format = %v, want %v", buf.Format, f)
	}
	for i, want := range in {
		if got := buf.Channel(0)[i]; got != want {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}
}

func TestDecodeChunk_Malformed(t *testing.T) {
	t.Parallel()

	f := audio.Mono(24000)
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not base64", "!!!not-base64", nil},
		{"odd byte count", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), audio.ErrMisalignedPCM},
		{"empty", "", ErrEmptyChunk},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeChunk(tc.data, f)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestPCMRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime   string
		want   int
		wantOK bool
	}{
		{"audio/pcm;rate=24000", 24000, true},
		{"audio/pcm; rate=16000", 16000, true},
		{"AUDIO/PCM; RATE=24000", 24000, true},
		{`audio/pcm;rate="24000"`, 24000, true},
		{"audio/pcm;channels=1;rate=24000", 24000, true},
		{"audio/pcm;rate", 0, false},
		{"audio/pcm", 0, false},
		{"audio/pcm;rate=abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := pcmRate(tc.mime)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("pcmRate(%q) = %d, %v; want %d, %v", tc.mime, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	base := errors.New("denied")
	err := error(&Error{Kind: KindSetup, Op: "open microphone", Err: base})

	if got := err.Error(); got != "live: open microphone: denied" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, base) {
		t.Error("Error does not unwrap to its cause")
	}
	if KindOf(err) != KindSetup {
		t.Errorf("KindOf = %v, want setup", KindOf(err))
	}
	if KindOf(base) != 0 {
		t.Errorf("KindOf(plain error) = %v, want 0", KindOf(base))
	}
	if StatusConnecting.String() != "connecting" || KindTransport.String() != "transport" {
		t.Error("unexpected String() output")
	}
}
