package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talvox/talvox/internal/config"
	"github.com/talvox/talvox/internal/eventloop"
	"github.com/talvox/talvox/internal/generate"
	"github.com/talvox/talvox/internal/session"
	"github.com/talvox/talvox/internal/voice"
	"github.com/talvox/talvox/pkg/speech"
)

// DialFunc connects to a speech backend. The default implementation dials
// the voiced daemon; tests inject fakes.
type DialFunc func(ctx context.Context) (speech.Backend, error)

// GatewayFactory builds the generation gateway for a session. The gateway
// reads the session's history when assembling prompts, so it cannot outlive
// the session.
type GatewayFactory func(h *session.History) (generate.Gateway, error)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID identifies the session; it doubles as the history ID.
	SessionID string

	// StartedAt is when the session connected to the speech daemon.
	StartedAt time.Time
}

// SessionManager owns the lifecycle of a voice session: the speech daemon
// connection, the event loop, and the interaction state machines. One
// session is active at a time, matching the single assistant window.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu         sync.Mutex
	active     bool
	info       SessionInfo
	loop       *eventloop.Loop
	backend    speech.Backend
	history    *session.History
	toggle     *voice.ToggleStateMachine
	controller *voice.VoiceModeController
	clicks     *voice.ClickDisambiguator
	gateway    generate.Gateway
	cancel     context.CancelFunc
	sessionCtx context.Context

	// Dependencies injected at construction.
	cfg      func() *config.Config
	dial     DialFunc
	gateways GatewayFactory
	status   voice.StatusSink
	ui       voice.UIHooks
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Config returns the current configuration. Called at session start so
	// hot-reloaded tuning applies to new sessions.
	Config func() *config.Config

	Dial     DialFunc
	Gateways GatewayFactory

	// Status and UI receive state updates from the session's state
	// machines. Nil values default to no-ops.
	Status voice.StatusSink
	UI     voice.UIHooks
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		cfg:      cfg.Config,
		dial:     cfg.Dial,
		gateways: cfg.Gateways,
		status:   cfg.Status,
		ui:       cfg.UI,
	}
	if sm.status == nil {
		sm.status = voice.NopStatusSink{}
	}
	if sm.ui == nil {
		sm.ui = voice.NopUIHooks{}
	}
	return sm
}

// Start connects to the speech daemon and assembles the session: event
// loop, history, generation gateway, and the click/toggle/voice-mode state
// machines. Returns an error if a session is already active or the daemon
// is unreachable; in the latter case the caller keeps the manual input
// path and may retry later.
func (sm *SessionManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return fmt.Errorf("session: a session is already active (id=%s)", sm.info.SessionID)
	}

	cfg := sm.cfg()

	backend, err := sm.dial(ctx)
	if err != nil {
		return fmt.Errorf("session: connect speech daemon: %w", err)
	}

	// The session outlives the Start call; it is torn down by Stop.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	loop := eventloop.New()
	go loop.Run(sessionCtx)

	history := session.NewHistory(session.HistoryConfig{
		MaxMessages: cfg.Session.MaxMessages,
	})

	gw, err := sm.gateways(history)
	if err != nil {
		cancel()
		loop.Close()
		backend.Cleanup()
		return fmt.Errorf("session: build generation gateway: %w", err)
	}

	neg := voice.NewPauseResumeNegotiator(backend, cfg.Voice.PauseMaxAttempts, cfg.Voice.PauseRetryDelay())
	completion := voice.NewCompletionWatcher(backend, cfg.Voice.CompletionPollInterval(), loop.Post)

	// The toggle's completion handler feeds the controller, which is built
	// from the toggle. Close over the variable to break the cycle.
	var controller *voice.VoiceModeController
	toggle := voice.NewToggleStateMachine(backend, neg, completion, loop.Post,
		voice.WithStatusSink(sm.status),
		voice.WithUIHooks(sm.ui),
		voice.WithCompletionHandler(func(uint64) {
			controller.OnUtteranceComplete(sessionCtx)
		}),
	)

	ctrlOpts := []voice.ControllerOption{
		voice.WithControllerStatusSink(sm.status),
		voice.WithControllerUIHooks(sm.ui),
	}
	if cfg.Voice.Greeting != nil {
		ctrlOpts = append(ctrlOpts, voice.WithGreeting(*cfg.Voice.Greeting))
	}
	controller = voice.NewVoiceModeController(backend, gw, toggle, history, loop.Post, ctrlOpts...)

	clicks := voice.NewClickDisambiguator(cfg.Voice.DoubleClickInterval(), loop.Post,
		func() { toggle.OnSingleClick(sessionCtx) },
		toggle.OnDoubleClick,
	)

	sm.active = true
	sm.loop = loop
	sm.backend = backend
	sm.history = history
	sm.toggle = toggle
	sm.controller = controller
	sm.clicks = clicks
	sm.gateway = gw
	sm.cancel = cancel
	sm.sessionCtx = sessionCtx
	sm.info = SessionInfo{
		SessionID: history.ID(),
		StartedAt: time.Now().UTC(),
	}

	slog.Info("session started", "session_id", sm.info.SessionID)
	return nil
}

// Stop tears down the active session: the in-flight state machine work is
// flushed on the event loop, the speech backend is released, and all state
// is cleared. Returns an error if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: no active session to stop")
	}

	sessionID := sm.info.SessionID

	// Disable on the loop so teardown serialises with pending events.
	done := make(chan struct{})
	posted := sm.loop.Post(func() {
		sm.clicks.Cancel()
		sm.controller.Disable()
		sm.toggle.Disable()
		close(done)
	})
	if posted {
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("session: teardown deadline exceeded", "session_id", sessionID)
		}
	}

	sm.cancel()
	sm.loop.Close()
	sm.backend.Cleanup()
	sm.history.Reset()

	sm.active = false
	sm.loop = nil
	sm.backend = nil
	sm.history = nil
	sm.toggle = nil
	sm.controller = nil
	sm.clicks = nil
	sm.gateway = nil
	sm.cancel = nil
	sm.sessionCtx = nil
	sm.info = SessionInfo{}

	slog.Info("session stopped", "session_id", sessionID)
	return nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns the zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Click records one press of the speaker toggle. Rapid presses within the
// disambiguation window collapse into a double click that stops playback;
// a lone press pauses or resumes speech.
func (sm *SessionManager) Click() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return false
	}
	clicks := sm.clicks
	return sm.loop.Post(clicks.Press)
}

// Key identifies a keyboard shortcut funneled into the toggle machine.
type Key int

const (
	// KeySpace carries single-click semantics: pause or resume playback.
	KeySpace Key = iota

	// KeyEscape carries double-click semantics: stop and reveal.
	KeyEscape
)

// KeyPress funnels a keyboard shortcut into the toggle machine. Space maps
// to single-click semantics and escape to double-click semantics directly,
// bypassing the disambiguation window — a key press is already unambiguous,
// only physical presses of the speaker toggle need disambiguating. The
// press is dropped while a text-input control has focus, so typing a space
// or dismissing a dialog with escape never drives playback; that
// precondition is checked here, not in the state machine.
func (sm *SessionManager) KeyPress(key Key, textInputFocused bool) bool {
	if textInputFocused {
		return false
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return false
	}
	toggle, sessionCtx := sm.toggle, sm.sessionCtx
	switch key {
	case KeySpace:
		return sm.loop.Post(func() { toggle.OnSingleClick(sessionCtx) })
	case KeyEscape:
		return sm.loop.Post(toggle.OnDoubleClick)
	default:
		return false
	}
}

// SetReadAloud enables or disables spoken replies outside hands-free mode.
func (sm *SessionManager) SetReadAloud(enabled bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return false
	}
	toggle := sm.toggle
	if enabled {
		return sm.loop.Post(toggle.Enable)
	}
	return sm.loop.Post(toggle.Disable)
}

// EnableVoiceMode engages hands-free conversation. The microphone starts
// listening and the manual input field is hidden.
func (sm *SessionManager) EnableVoiceMode() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return false
	}
	controller, ctx := sm.controller, sm.sessionCtx
	return sm.loop.Post(func() { controller.Enable(ctx) })
}

// DisableVoiceMode exits hands-free conversation and restores the manual
// input field.
func (sm *SessionManager) DisableVoiceMode() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return false
	}
	controller := sm.controller
	return sm.loop.Post(controller.Disable)
}

// SubmitText runs one typed conversation turn: the text is recorded,
// a reply is generated, and the reply is read aloud when the speaker
// toggle is enabled. This is the manual input path; hands-free turns flow
// through the voice mode controller instead.
func (sm *SessionManager) SubmitText(ctx context.Context, text string) (string, error) {
	sm.mu.Lock()
	if !sm.active {
		sm.mu.Unlock()
		return "", fmt.Errorf("session: no active session")
	}
	gw := sm.gateway
	history := sm.history
	loop := sm.loop
	toggle := sm.toggle
	sessionCtx := sm.sessionCtx
	sm.mu.Unlock()

	history.AppendUser(text)
	reply, err := gw.Generate(ctx, text)
	if err != nil {
		return "", fmt.Errorf("session: generate reply: %w", err)
	}
	history.AppendAssistant(reply)

	loop.Post(func() {
		if toggle.State() != voice.ToggleOff {
			toggle.BeginUtterance(sessionCtx, reply)
		}
	})

	return reply, nil
}

// History returns the active session's conversation history, or nil when
// no session is active.
func (sm *SessionManager) History() *session.History {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.history
}
