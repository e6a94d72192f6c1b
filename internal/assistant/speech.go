package assistant

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/peridot-guide/internal/live"
	"github.com/MrWong99/peridot-guide/internal/observe"
	"github.com/MrWong99/peridot-guide/pkg/audio"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// speechRate is the sample rate of synthesised speech when the response does
// not name one.
const speechRate = 24000

// ErrNoPlatform is returned by [Assistant.Speak] when the assistant has no
// audio platform.
var ErrNoPlatform = errors.New("assistant: no audio platform")

// Synthesize turns text into mono PCM audio.
func (a *Assistant) Synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := observe.StartSpan(ctx, "assistant.synthesize",
		trace.WithAttributes(observe.AttrModel.String(a.cfg.SpeechModel)))
	defer span.End()

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: a.cfg.SpeechVoice},
			},
		},
	}
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}

	start := time.Now()
	var buf *audio.Buffer
	err := a.speech.Execute(func() error {
		resp, err := a.gen.GenerateContent(ctx, a.cfg.SpeechModel, contents, cfg)
		if err != nil {
			return err
		}
		blob := speechBlob(resp)
		if blob == nil || len(blob.Data) == 0 {
			return ErrNoAudio
		}
		buf, err = audio.DecodePCM16(blob.Data, audio.Mono(blobRate(blob.MIMEType)))
		return err
	})
	a.record(ctx, a.metrics.TTSDuration, "tts", start, err)
	observe.SetSpanResult(span, err)
	if err != nil {
		return nil, fmt.Errorf("assistant: synthesize: %w", err)
	}
	return buf, nil
}

// Speak synthesises text and plays it. It returns once playback finished, or
// stops playback and returns the context error when ctx is done first.
func (a *Assistant) Speak(ctx context.Context, text string) error {
	if a.platform == nil {
		return ErrNoPlatform
	}
	buf, err := a.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	out, err := a.platform.NewOutputContext(buf.Format)
	if err != nil {
		return fmt.Errorf("assistant: speak: create output context: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			a.log.Debug("assistant: close output context", "err", err)
		}
	}()
	if out.State() == audio.StateSuspended {
		if err := out.Resume(ctx); err != nil {
			return fmt.Errorf("assistant: speak: resume output context: %w", err)
		}
	}

	sched := live.NewScheduler(out)
	_, voice, err := sched.Schedule(buf)
	if err != nil {
		return fmt.Errorf("assistant: speak: %w", err)
	}
	a.log.Debug("assistant: speaking", "duration", buf.Duration())

	select {
	case <-voice.Done():
		return nil
	case <-ctx.Done():
		sched.Interrupt()
		return ctx.Err()
	}
}

// speechBlob returns the first inline audio part of resp.
func speechBlob(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p != nil && p.InlineData != nil {
				return p.InlineData
			}
		}
	}
	return nil
}

// blobRate reads the rate parameter of an audio MIME type such as
// "audio/L16;codec=pcm;rate=24000".
func blobRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return speechRate
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return speechRate
	}
	return rate
}
