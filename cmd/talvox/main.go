// Command talvox is the main entry point for the Talvox desktop voice
// assistant. It runs the voice session against the voiced speech daemon
// and drives it from a small line-based console, which stands in for the
// desktop shell during development.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/talvox/talvox/internal/app"
	"github.com/talvox/talvox/internal/config"
	"github.com/talvox/talvox/internal/observe"
	"github.com/talvox/talvox/internal/voice"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "talvox.yaml", "path to the YAML configuration file")
	flag.Parse()

	// API keys may live in a .env next to the binary.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "talvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "talvox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.App.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("talvox starting",
		"config", *configPath,
		"daemon_url", cfg.Speech.DaemonURL,
		"log_level", cfg.App.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var traceExp sdktrace.SpanExporter
	if cfg.App.TraceExporter == config.TraceStdout {
		traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Error("failed to create trace exporter", "err", err)
			return 1
		}
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:   "talvox",
		TraceExporter: traceExp,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithLogLevelVar(level),
		app.WithStatusSink(&consoleStatus{}),
		app.WithUIHooks(&consoleUI{}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.OnShutdown(shutdownTelemetry)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg)
	slog.Info("ready — press Ctrl+C to shut down")

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(runCtx)
	})
	g.Go(func() error {
		return console(runCtx, application)
	})

	err = g.Wait()
	stop()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("shutdown error", "err", shutdownErr)
		return 1
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// console reads commands from stdin and drives the session:
//
//	/voice        toggle hands-free conversation
//	/click        press the speaker toggle (twice quickly = stop)
//	/speaker on   read replies aloud
//	/speaker off  stop reading replies aloud
//	/quit         exit
//
// Any other line is sent as a typed message.
func console(ctx context.Context, application *app.App) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	voiceMode := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed (e.g. piped input ran out); keep the
				// app running for signals.
				<-ctx.Done()
				return ctx.Err()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			sessions := application.Sessions()
			switch {
			case line == "/quit":
				return context.Canceled
			case line == "/voice":
				if voiceMode {
					sessions.DisableVoiceMode()
				} else {
					sessions.EnableVoiceMode()
				}
				voiceMode = !voiceMode
			case line == "/click":
				if !sessions.Click() {
					fmt.Println("no active voice session")
				}
			case line == "/speaker on":
				sessions.SetReadAloud(true)
			case line == "/speaker off":
				sessions.SetReadAloud(false)
			case strings.HasPrefix(line, "/"):
				fmt.Println("commands: /voice /click /speaker on|off /quit")
			default:
				reply, err := sessions.SubmitText(ctx, line)
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Printf("assistant: %s\n", reply)
			}
		}
	}
}

// consoleStatus mirrors the status banner onto stdout.
type consoleStatus struct{}

func (consoleStatus) SetStatus(s voice.Status) {
	fmt.Printf("[%s]\n", s)
}

// consoleUI narrates input-surface changes the desktop shell would make.
type consoleUI struct{}

func (consoleUI) HideManualInput() { fmt.Println("(voice mode — typed input hidden)") }
func (consoleUI) ShowManualInput() { fmt.Println("(typed input restored)") }
func (consoleUI) Reveal()          { fmt.Println("(transcript revealed)") }

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Talvox — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Daemon", cfg.Speech.DaemonURL)
	printEntry("LLM", cfg.LLM.Primary.Name+" / "+cfg.LLM.Primary.Model)
	printEntry("Fallbacks", fmt.Sprintf("%d", len(cfg.LLM.Fallbacks)))
	printEntry("Stop word", cfg.Voice.StopWord)
	printEntry("Log level", string(cfg.App.LogLevel))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
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
