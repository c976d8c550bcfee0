// Package app wires all Talvox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithDial,
// WithGatewayFactory, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/talvox/talvox/internal/config"
	"github.com/talvox/talvox/internal/diag"
	"github.com/talvox/talvox/internal/generate"
	"github.com/talvox/talvox/internal/session"
	"github.com/talvox/talvox/internal/stopword"
	"github.com/talvox/talvox/internal/voice"
	"github.com/talvox/talvox/pkg/speech"
	"github.com/talvox/talvox/pkg/speech/voiced"
)

// App owns the process-wide subsystems: provider registry, stop word
// detector, telemetry, and the session manager.
type App struct {
	cfg      atomic.Pointer[config.Config]
	registry *config.Registry
	detector atomic.Pointer[stopword.Detector]
	level    *slog.LevelVar
	sessions *SessionManager

	dial     DialFunc
	gateways GatewayFactory
	status   voice.StatusSink
	ui       voice.UIHooks

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry injects a provider registry instead of the default one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithDial injects a speech backend dialer instead of connecting to the
// voiced daemon.
func WithDial(d DialFunc) Option {
	return func(a *App) { a.dial = d }
}

// WithGatewayFactory injects a generation gateway factory instead of
// building provider gateways from the config.
func WithGatewayFactory(f GatewayFactory) Option {
	return func(a *App) { a.gateways = f }
}

// WithStatusSink routes status banner updates to the given sink.
func WithStatusSink(s voice.StatusSink) Option {
	return func(a *App) { a.status = s }
}

// WithUIHooks routes input-surface changes to the given hooks.
func WithUIHooks(ui voice.UIHooks) Option {
	return func(a *App) { a.ui = ui }
}

// WithLogLevelVar hands the app the level var backing the process logger,
// so log level changes from config reloads take effect.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// New creates an App by wiring all subsystems together.
//
// New initialises the stop word detector and the session manager, but does
// not touch the speech daemon; that happens when the first session starts
// in Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}

	if a.registry == nil {
		a.registry = config.DefaultRegistry()
	}

	a.detector.Store(stopword.New(cfg.Voice.StopWord, cfg.Voice.StopWordThreshold))

	if a.dial == nil {
		a.dial = a.dialVoiced
	}
	if a.gateways == nil {
		a.gateways = a.buildGateway
	}

	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:   a.Config,
		Dial:     a.dial,
		Gateways: a.gateways,
		Status:   a.status,
		UI:       a.ui,
	})

	_ = ctx // reserved for future async subsystem init
	return a, nil
}

// OnShutdown registers a closer to run during [App.Shutdown], after the
// active session has stopped. Closers run in registration order.
func (a *App) OnShutdown(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Config returns the current configuration. Reloads swap the pointer, so
// callers must not mutate the result.
func (a *App) Config() *config.Config {
	return a.cfg.Load()
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// ApplyConfig installs a hot-reloaded configuration. Only the fields named
// in the diff change behaviour; everything else applies to future sessions
// via [App.Config].
func (a *App) ApplyConfig(cfg *config.Config, d config.Diff) {
	a.cfg.Store(cfg)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.StopWordChanged {
		a.detector.Store(stopword.New(cfg.Voice.StopWord, cfg.Voice.StopWordThreshold))
		slog.Info("stop word changed", "word", cfg.Voice.StopWord)
	}
}

// Run starts a voice session and blocks until ctx is cancelled. A speech
// daemon connection failure is not fatal: the app stays up with voice
// affordances disabled and typed input untouched.
func (a *App) Run(ctx context.Context) error {
	if addr := a.Config().App.DiagAddr; addr != "" {
		srv := diag.NewServer(addr,
			diag.Checker{Name: "speech_daemon", Check: func(context.Context) error {
				if !a.sessions.IsActive() {
					return errors.New("no active speech session")
				}
				return nil
			}},
		)
		go func() {
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("diagnostics server error", "err", err)
			}
		}()
	}

	if err := a.sessions.Start(ctx); err != nil {
		slog.Warn("voice unavailable, continuing with typed input only", "err", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Shutdown stops the active session and tears down telemetry. It respects
// the context deadline: if ctx expires, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.sessions.IsActive() {
			if err := a.sessions.Stop(ctx); err != nil {
				slog.Warn("session stop error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// dialVoiced connects to the voiced speech daemon named in the config.
func (a *App) dialVoiced(ctx context.Context) (speech.Backend, error) {
	cfg := a.Config()
	return voiced.Dial(ctx, cfg.Speech.DaemonURL,
		voiced.WithCommandTimeout(cfg.Speech.CommandTimeout()),
		voiced.WithStopWordMatcher(a.currentMatcher()),
	)
}

// buildGateway assembles the generation chain from the config: a provider
// gateway per configured entry, wrapped in the failover gateway.
func (a *App) buildGateway(h *session.History) (generate.Gateway, error) {
	cfg := a.Config()

	primary, err := a.providerGateway(cfg, cfg.LLM.Primary, h)
	if err != nil {
		return nil, fmt.Errorf("primary provider %q: %w", cfg.LLM.Primary.Name, err)
	}

	if len(cfg.LLM.Fallbacks) == 0 {
		return primary, nil
	}

	fg := generate.NewFallbackGateway(primary, cfg.LLM.Primary.Name, generate.BreakerConfig{
		MaxFailures: cfg.LLM.Breaker.MaxFailures,
		Cooldown:    cfg.LLM.Breaker.Cooldown(),
	})
	for _, entry := range cfg.LLM.Fallbacks {
		gw, err := a.providerGateway(cfg, entry, h)
		if err != nil {
			return nil, fmt.Errorf("fallback provider %q: %w", entry.Name, err)
		}
		fg.AddFallback(entry.Name, gw)
	}
	return fg, nil
}

func (a *App) providerGateway(cfg *config.Config, entry config.ProviderEntry, h *session.History) (generate.Gateway, error) {
	p, err := a.registry.Create(entry)
	if err != nil {
		return nil, err
	}
	return generate.NewProviderGateway(generate.ProviderGatewayConfig{
		Provider:     p,
		History:      h,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
}

// currentMatcher adapts the swappable detector to the voiced Matcher
// interface, so stop word changes apply without redialing.
func (a *App) currentMatcher() voiced.Matcher {
	return matcherFunc(func(transcript string) bool {
		return a.detector.Load().Match(transcript)
	})
}

type matcherFunc func(string) bool

func (f matcherFunc) Match(transcript string) bool { return f(transcript) }

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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
