// Command peridot-guide is the Peridot roadmap guide: a realtime voice
// session with the Gemini Live API, a grounded text chat about the roadmap
// and one-off speech synthesis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/peridot-guide/internal/config"
	"github.com/MrWong99/peridot-guide/internal/health"
	"github.com/MrWong99/peridot-guide/internal/observe"
	"github.com/MrWong99/peridot-guide/pkg/audio"
)

const usage = `usage: peridot-guide [flags] <command>

commands:
  live          talk to Peridot through the microphone (default)
  chat          ask questions on stdin
  speak <text>  read text aloud

flags:
`

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults when empty)")
	speak := flag.Bool("speak", false, "chat: read every reply aloud")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command, args, err := parseCommand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "peridot-guide: %v\n", err)
		flag.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "peridot-guide: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "peridot-guide: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("peridot-guide starting",
		"command", command,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.Setup(ctx, observe.Config{ServiceName: "peridot-guide"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Live, slog.Default())

	application, err := newApp(ctx, cfg, reg, tel.Metrics)
	if err != nil {
		slog.Error("failed to initialise", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(_, new *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.reload(new, d)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	printStartupSummary(os.Stdout, cfg, command)

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if addr := cfg.Server.ListenAddr; addr != "" {
		checkers := []health.Checker{health.APIKey(cfg.Providers.S2S.APIKey)}
		if command == "live" {
			checkers = append(checkers, health.Session(application.liveStatus))
		}
		g.Go(func() error {
			return serveHTTP(gctx, addr, tel.Metrics, checkers...)
		})
	}

	g.Go(func() error {
		// The HTTP server only lives as long as the command.
		defer cancel()
		switch command {
		case "chat":
			return application.runChat(gctx, os.Stdin, os.Stdout, *speak)
		case "speak":
			return application.runSpeak(gctx, strings.Join(args, " "))
		default:
			return application.runLive(gctx, os.Stdout)
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		if errors.Is(err, audio.ErrPermissionDenied) {
			fmt.Fprintln(os.Stderr, "peridot-guide: microphone access was denied")
		}
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// parseCommand splits the positional arguments into a command and its
// arguments. No arguments selects "live".
func parseCommand(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "live", nil, nil
	}
	switch cmd := args[0]; cmd {
	case "live", "chat":
		if len(args) > 1 {
			return "", nil, fmt.Errorf("%s takes no arguments", cmd)
		}
		return cmd, nil, nil
	case "speak":
		if strings.TrimSpace(strings.Join(args[1:], " ")) == "" {
			return "", nil, errors.New("speak needs the text to read")
		}
		return cmd, args[1:], nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, command string) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      Peridot guide, startup summary   ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Command", command)
	printProvider(w, "S2S", cfg.Providers.S2S.Name, cfg.Providers.S2S.Model)
	printProvider(w, "Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider(w, "Audio", cfg.Audio.Platform, "")
	roadmap := cfg.Roadmap
	if roadmap == "" {
		roadmap = "(built-in)"
	}
	printRow(w, "Roadmap", roadmap)
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
