package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/peridot-guide/internal/assistant"
	"github.com/MrWong99/peridot-guide/internal/config"
	"github.com/MrWong99/peridot-guide/internal/live"
	"github.com/MrWong99/peridot-guide/internal/observe"
	"github.com/MrWong99/peridot-guide/internal/roadmap"
	"github.com/MrWong99/peridot-guide/internal/transcript"
	"github.com/MrWong99/peridot-guide/pkg/audio"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// app holds the long-lived pieces shared by all commands.
type app struct {
	cfg      *config.Config
	reg      *config.Registry
	metrics  *observe.Metrics
	gen      assistant.Generator
	platform audio.Platform
	log      *slog.Logger

	// instructions is the system prompt rendered from the roadmap at start-up.
	instructions string
	corrector    *transcript.Corrector

	asst atomic.Pointer[assistant.Assistant]
	ctrl atomic.Pointer[live.Controller]
}

func newApp(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app, error) {
	rm, err := roadmap.Load(cfg.Roadmap)
	if err != nil {
		return nil, err
	}
	platform, err := reg.CreateAudio(cfg)
	if err != nil {
		return nil, fmt.Errorf("create audio platform %q: %w", cfg.Audio.Platform, err)
	}
	chat := cfg.Providers.Chat
	gen, err := assistant.NewGenerator(ctx, chat.APIKey, chat.BaseURL)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		reg:          reg,
		metrics:      m,
		gen:          gen,
		platform:     platform,
		log:          slog.Default(),
		instructions: rm.Instructions(),
		corrector:    transcript.New(rm.Vocabulary()),
	}
	a.asst.Store(a.newAssistant(cfg, a.instructions))
	return a, nil
}

func (a *app) newAssistant(cfg *config.Config, instructions string) *assistant.Assistant {
	return assistant.New(a.gen, a.platform, assistant.Config{
		Instructions:   instructions,
		ChatModel:      cfg.Providers.Chat.Model,
		FallbackModels: cfg.Assistant.FallbackModels,
		SpeechModel:    cfg.Providers.TTS.Model,
		SpeechVoice:    cfg.Assistant.SpeechVoice,
		History:        cfg.Assistant.History,
		Search:         cfg.Assistant.SearchEnabled(),
	}, assistant.WithLogger(a.log), assistant.WithMetrics(a.metrics))
}

// reload swaps in a new assistant when its settings or the roadmap changed.
// A running live session keeps the instructions it was opened with.
func (a *app) reload(cfg *config.Config, d config.ConfigDiff) {
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to apply", "sections", d.RestartRequired)
	}
	if !d.AssistantChanged && !d.RoadmapChanged {
		return
	}
	rm, err := roadmap.Load(cfg.Roadmap)
	if err != nil {
		a.log.Warn("keeping previous roadmap", "err", err)
		return
	}
	a.asst.Store(a.newAssistant(cfg, rm.Instructions()))
	a.log.Info("assistant reloaded", "roadmap_changed", d.RoadmapChanged)
}

// liveStatus reports the status of the live session for readiness probes.
func (a *app) liveStatus() live.Status {
	if c := a.ctrl.Load(); c != nil {
		return c.Status()
	}
	return live.StatusDisconnected
}

func (a *app) liveConfig() live.Config {
	lc := a.cfg.Live
	cfg := live.Config{
		Instructions: a.instructions,
		Voice:        lc.Voice,
		Transcribe:   lc.Transcribe,
		BlockSize:    lc.BlockSize,
	}
	if lc.InputSampleRate > 0 {
		cfg.InputFormat = audio.Mono(lc.InputSampleRate)
	}
	if lc.OutputSampleRate > 0 {
		cfg.OutputFormat = audio.Mono(lc.OutputSampleRate)
	}
	return cfg
}

// runLive opens a voice session and keeps it until ctx is done or the
// session ends on its own.
func (a *app) runLive(ctx context.Context, out io.Writer) error {
	provider, err := a.reg.CreateS2S(a.cfg)
	if err != nil {
		return fmt.Errorf("create s2s provider %q: %w", a.cfg.Providers.S2S.Name, err)
	}

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	ctrl := live.New(a.platform, provider, a.liveConfig(),
		live.WithLogger(a.log),
		live.WithMetrics(a.metrics),
		live.WithInterruptHandler(func() { printf("[interrupted]\n") }),
		live.WithTranscriptHandler(func(t s2s.Transcript) {
			t, corrections := a.corrector.Fix(t)
			for _, c := range corrections {
				a.log.Debug("transcript corrected", "original", c.Original, "corrected", c.Corrected, "confidence", c.Confidence)
			}
			who := "you"
			if t.Role == s2s.RoleModel {
				who = "peridot"
			}
			printf("%s: %s\n", who, t.Text)
		}),
	)
	a.ctrl.Store(ctrl)

	ended := make(chan error, 1)
	onStatus := func(st live.Status, err error) {
		if err != nil {
			printf("[%s] %v\n", st, err)
		} else {
			printf("[%s]\n", st)
		}
		if st == live.StatusDisconnected || st == live.StatusError {
			select {
			case ended <- err:
			default:
			}
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.Live.ConnectTimeout)
	err = ctrl.Connect(connectCtx, onStatus)
	cancel()
	if err != nil {
		return fmt.Errorf("live: %w", err)
	}
	printf("Peridot is listening. Press Ctrl+C to hang up.\n")

	select {
	case <-ctx.Done():
		return ctrl.Disconnect()
	case err := <-ended:
		_ = ctrl.Disconnect()
		if err != nil {
			return fmt.Errorf("live: %w", err)
		}
		return nil
	}
}

// runChat answers one question per input line until in is exhausted or ctx
// is done. Failed replies stay in the transcript but are never sent back to
// the model.
func (a *app) runChat(ctx context.Context, in io.Reader, out io.Writer, speak bool) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	fmt.Fprintln(out, "Ask Peridot about the roadmap. Ctrl+D quits.")
	var history []assistant.Message
	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		asst := a.asst.Load()
		history = append(history, assistant.Message{Role: assistant.RoleUser, Text: line, Time: time.Now()})
		reply, err := asst.Chat(ctx, history[:len(history)-1], line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Sorry, I could not answer that: %v\n", err)
			history = append(history, assistant.Message{Role: assistant.RoleModel, Text: err.Error(), Time: time.Now(), IsError: true})
			continue
		}
		history = append(history, assistant.Message{Role: assistant.RoleModel, Text: reply.Text, Time: time.Now()})
		printReply(out, reply)

		if speak {
			if err := asst.Speak(ctx, reply.Text); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("could not read reply aloud", "err", err)
			}
		}
	}
}

func printReply(out io.Writer, r assistant.Reply) {
	fmt.Fprintln(out, r.Text)
	for i, s := range r.Sources {
		fmt.Fprintf(out, "  [%d] %s <%s>\n", i+1, s.Title, s.URI)
	}
}

// runSpeak reads text aloud once.
func (a *app) runSpeak(ctx context.Context, text string) error {
	err := a.asst.Load().Speak(ctx, text)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
