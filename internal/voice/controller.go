package voice

import (
	"context"
	"log/slog"
	"time"

	"github.com/talvox/talvox/internal/generate"
	"github.com/talvox/talvox/internal/observe"
	"github.com/talvox/talvox/internal/session"
	"github.com/talvox/talvox/pkg/speech"
)

const defaultGreeting = "Voice mode enabled. I'm listening."

// VoiceModeController runs the hands-free loop: listen for a transcript,
// generate a reply, speak it, listen again. It owns the mode state and
// enforces that listening and speaking never overlap; the speech backend
// is never told to listen while playback is still audible.
//
// Backend callbacks arrive on arbitrary goroutines and are immediately
// posted onto the event loop, so every method and transition below runs
// serialized. All exported methods must be called from the event loop.
type VoiceModeController struct {
	backend speech.Backend
	gateway generate.Gateway
	toggle  *ToggleStateMachine
	history *session.History
	post    func(func()) bool
	status  StatusSink
	ui      UIHooks

	state    ModeState
	turn     uint64 // generation turn counter, guards stale results
	greeting string
}

// ControllerOption configures a [VoiceModeController].
type ControllerOption func(*VoiceModeController)

// WithControllerStatusSink routes status labels to sink.
func WithControllerStatusSink(sink StatusSink) ControllerOption {
	return func(c *VoiceModeController) {
		c.status = sink
	}
}

// WithControllerUIHooks wires the host UI's visibility callbacks.
func WithControllerUIHooks(ui UIHooks) ControllerOption {
	return func(c *VoiceModeController) {
		c.ui = ui
	}
}

// WithGreeting overrides the utterance spoken when the mode engages.
// An empty string disables the greeting.
func WithGreeting(text string) ControllerOption {
	return func(c *VoiceModeController) {
		c.greeting = text
	}
}

// NewVoiceModeController builds the controller in state [ModeIdle]. The
// toggle machine must have been constructed with a completion handler
// pointing at [VoiceModeController.OnUtteranceComplete]; see
// [NewVoiceSession] in internal/app for the canonical wiring.
func NewVoiceModeController(backend speech.Backend, gateway generate.Gateway, toggle *ToggleStateMachine, history *session.History, post func(func()) bool, opts ...ControllerOption) *VoiceModeController {
	c := &VoiceModeController{
		backend:  backend,
		gateway:  gateway,
		toggle:   toggle,
		history:  history,
		post:     post,
		status:   NopStatusSink{},
		ui:       NopUIHooks{},
		state:    ModeIdle,
		greeting: defaultGreeting,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current mode state.
func (c *VoiceModeController) State() ModeState { return c.state }

// Enabled reports whether the hands-free loop is engaged.
func (c *VoiceModeController) Enabled() bool { return c.state != ModeIdle }

// Enable engages Full Voice Mode: hides the manual input, arms the
// toggle, starts the backend listener, and speaks a short greeting. A
// no-op if the mode is already engaged.
func (c *VoiceModeController) Enable(ctx context.Context) {
	if c.state != ModeIdle {
		return
	}
	c.ui.HideManualInput()
	c.toggle.Enable()
	c.backend.Listen(
		func(text string) {
			c.post(func() { c.onTranscript(ctx, text) })
		},
		func() {
			c.post(func() { c.Disable() })
		},
	)
	c.state = ModeListening
	c.status.SetStatus(StatusListening)
	observe.DefaultMetrics().ActiveVoiceSessions.Add(ctx, 1)
	slog.Info("voice: full voice mode enabled")
	if c.greeting != "" {
		c.speak(ctx, c.greeting)
	}
}

// Disable disengages the mode from any state: stops listening, stops
// playback, restores the manual input. Safe to call while Listening,
// Processing, or Speaking, and idempotent. The stop-word callback lands
// here too.
func (c *VoiceModeController) Disable() {
	if c.state == ModeIdle {
		return
	}
	c.backend.StopListening()
	c.backend.Stop()
	c.turn++ // any in-flight generation result is now stale
	c.toggle.Disable()
	c.state = ModeIdle
	c.ui.ShowManualInput()
	c.status.SetStatus(StatusReady)
	observe.DefaultMetrics().ActiveVoiceSessions.Add(context.Background(), -1)
	slog.Info("voice: full voice mode disabled")
}

// onTranscript handles one recognized user utterance. Generation runs on
// a background goroutine; its result is posted back and discarded if the
// mode has moved on in the meantime.
func (c *VoiceModeController) onTranscript(ctx context.Context, text string) {
	if c.state != ModeListening {
		observe.DefaultMetrics().RecordStaleEvent(ctx, "transcript")
		slog.Debug("voice: discarding transcript outside listening", "state", c.state)
		return
	}
	c.state = ModeProcessing
	c.status.SetStatus(StatusProcessing)
	c.history.AppendUser(text)
	observe.DefaultMetrics().RecordUtterance(ctx, "user")

	turn := c.turn
	go func() {
		ctx, span := observe.StartSpan(ctx, "voice.generate")
		reply, err := c.gateway.Generate(ctx, text)
		span.End()
		c.post(func() {
			if turn != c.turn || c.state != ModeProcessing {
				observe.DefaultMetrics().RecordStaleEvent(ctx, "generation")
				slog.Debug("voice: discarding stale generation result", "turn", turn)
				return
			}
			if err != nil {
				slog.Error("voice: generation failed", "error", err)
				observe.DefaultMetrics().RecordTurn(ctx, "error")
				// Return to listening but leave ERROR on the sink; an
				// immediate LISTENING would overwrite it before any real
				// display could show it. The next transcript replaces it
				// with PROCESSING.
				c.state = ModeListening
				c.status.SetStatus(StatusError)
				return
			}
			c.history.AppendAssistant(reply)
			observe.DefaultMetrics().RecordUtterance(ctx, "assistant")
			c.speak(ctx, reply)
		})
	}()
}

// speak hands text to the toggle machine and moves to Speaking. Listening
// is stopped first so the recognizer cannot hear the assistant.
func (c *VoiceModeController) speak(ctx context.Context, text string) {
	c.backend.StopListening()
	if _, ok := c.toggle.BeginUtterance(ctx, text); !ok {
		// Backend refused; stay in (or return to) listening.
		c.resumeListening(ctx)
		return
	}
	c.state = ModeSpeaking
	observe.DefaultMetrics().RecordTurn(ctx, "spoken")
}

// OnUtteranceComplete is invoked by the toggle machine after an
// utterance ends naturally. The mode returns to Listening only once the
// backend confirms playback has fully stopped.
func (c *VoiceModeController) OnUtteranceComplete(ctx context.Context) {
	if c.state != ModeSpeaking {
		return
	}
	if c.backend.IsSpeaking() {
		// The watcher fired but audio is still draining; check again
		// shortly rather than let the recognizer hear us.
		time.AfterFunc(defaultPollInterval, func() {
			c.post(func() { c.OnUtteranceComplete(ctx) })
		})
		return
	}
	c.resumeListening(ctx)
}

func (c *VoiceModeController) resumeListening(ctx context.Context) {
	c.backend.Listen(
		func(text string) {
			c.post(func() { c.onTranscript(ctx, text) })
		},
		func() {
			c.post(func() { c.Disable() })
		},
	)
	c.state = ModeListening
	c.status.SetStatus(StatusListening)
}
