package live

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/MrWong99/peridot-guide/pkg/audio"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// ErrEmptyChunk is returned by [DecodeChunk] for a payload with no samples.
var ErrEmptyChunk = errors.New("live: empty audio chunk")

// PCMMIMEType returns the MIME tag for raw PCM16 at sampleRate, e.g.
// "audio/pcm;rate=16000".
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodeBlock quantizes a captured block to PCM16 little-endian and wraps it
// as a base64 blob tagged for sampleRate. The block is not retained.
func EncodeBlock(block []float32, sampleRate int) s2s.Blob {
	return s2s.Blob{
		Data:     base64.StdEncoding.EncodeToString(audio.EncodePCM16(block)),
		MIMEType: PCMMIMEType(sampleRate),
	}
}

// DecodeChunk turns a base64 PCM16 payload into a playable buffer in format f.
func DecodeChunk(data string, f audio.Format) (*audio.Buffer, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("live: decode chunk: %w", err)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyChunk
	}
	buf, err := audio.DecodePCM16(pcm, f)
	if err != nil {
		return nil, fmt.Errorf("live: decode chunk: %w", err)
	}
	return buf, nil
}
