package voice

import "time"

// ToggleState is the logical state of the spoken-response toggle.
type ToggleState int

const (
	// ToggleOff means spoken responses are disabled entirely.
	ToggleOff ToggleState = iota

	// ToggleIdle means spoken responses are armed but nothing is playing.
	ToggleIdle

	// ToggleSpeaking means an utterance is actively playing.
	ToggleSpeaking

	// TogglePaused means an utterance is suspended mid-playback.
	TogglePaused
)

// String returns the human-readable name of the state.
func (s ToggleState) String() string {
	switch s {
	case ToggleOff:
		return "off"
	case ToggleIdle:
		return "idle"
	case ToggleSpeaking:
		return "speaking"
	case TogglePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ModeState is the state of the hands-free voice mode loop.
type ModeState int

const (
	// ModeIdle means voice mode is disabled.
	ModeIdle ModeState = iota

	// ModeListening means the recogniser is active and waiting for speech.
	ModeListening

	// ModeProcessing means a transcript is being answered by the LLM.
	ModeProcessing

	// ModeSpeaking means the assistant's reply is being synthesised.
	ModeSpeaking
)

// String returns the human-readable name of the state.
func (s ModeState) String() string {
	switch s {
	case ModeIdle:
		return "idle"
	case ModeListening:
		return "listening"
	case ModeProcessing:
		return "processing"
	case ModeSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Utterance identifies one synthesis request. Seq increases monotonically
// per session so that completion events for a superseded utterance can be
// recognised as stale and discarded.
type Utterance struct {
	// Seq is the monotonic sequence number assigned when the utterance
	// was started.
	Seq uint64

	// Text is the synthesised text.
	Text string

	// StartedAt is when synthesis was requested.
	StartedAt time.Time
}

// Status is one of the fixed display strings emitted to the [StatusSink].
type Status string

const (
	StatusReady      Status = "READY"
	StatusListening  Status = "LISTENING"
	StatusProcessing Status = "PROCESSING"
	StatusSpeaking   Status = "SPEAKING"
	StatusPaused     Status = "PAUSED"
	StatusError      Status = "ERROR"
)

// StatusSink receives human-readable state updates for display. The
// controller emits to it without knowing how it renders (tray icon tooltip,
// status label, log line). Implementations must be cheap: SetStatus is
// called on the event loop.
type StatusSink interface {
	SetStatus(status Status)
}

// UIHooks is the visibility surface the controller drives on the host UI.
// All methods are invoked on the event loop.
type UIHooks interface {
	// HideManualInput hides the text entry while hands-free mode is active.
	HideManualInput()

	// ShowManualInput restores the text entry after hands-free mode ends.
	ShowManualInput()

	// Reveal brings the chat window to the foreground (double-click
	// stop-and-reveal).
	Reveal()
}

// NopStatusSink discards all status updates.
type NopStatusSink struct{}

// SetStatus implements [StatusSink].
func (NopStatusSink) SetStatus(Status) {}

// NopUIHooks ignores all visibility requests.
type NopUIHooks struct{}

// HideManualInput implements [UIHooks].
func (NopUIHooks) HideManualInput() {}

// ShowManualInput implements [UIHooks].
func (NopUIHooks) ShowManualInput() {}

// Reveal implements [UIHooks].
func (NopUIHooks) Reveal() {}
