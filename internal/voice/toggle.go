package voice

import (
	"context"
	"log/slog"

	"github.com/talvox/talvox/internal/observe"
	"github.com/talvox/talvox/pkg/speech"
)

// ToggleStateMachine tracks whether synthesized speech is armed and, when
// it is, whether the current utterance is playing or paused. Transitions
// arrive from three sources: explicit enable/disable, disambiguated
// clicks, and completion callbacks from the watcher. All of them run on
// the event loop, so the machine holds no lock.
//
// All methods must be called from the event loop.
type ToggleStateMachine struct {
	backend speech.Backend
	neg     *PauseResumeNegotiator
	watcher *CompletionWatcher
	post    func(func()) bool
	status  StatusSink
	ui      UIHooks

	state       ToggleState
	seq         uint64
	negotiating bool

	// onCompletion fires after a Speaking→Idle transition caused by the
	// utterance ending naturally. The voice-mode loop hangs off it.
	onCompletion func(seq uint64)
}

// ToggleOption configures a [ToggleStateMachine].
type ToggleOption func(*ToggleStateMachine)

// WithStatusSink routes status labels to sink instead of discarding them.
func WithStatusSink(sink StatusSink) ToggleOption {
	return func(t *ToggleStateMachine) {
		t.status = sink
	}
}

// WithUIHooks wires the host UI's visibility callbacks.
func WithUIHooks(ui UIHooks) ToggleOption {
	return func(t *ToggleStateMachine) {
		t.ui = ui
	}
}

// WithCompletionHandler registers fn to run on the event loop after each
// natural utterance completion, with the finished sequence number.
func WithCompletionHandler(fn func(seq uint64)) ToggleOption {
	return func(t *ToggleStateMachine) {
		t.onCompletion = fn
	}
}

// NewToggleStateMachine builds the machine in state [ToggleOff].
func NewToggleStateMachine(backend speech.Backend, neg *PauseResumeNegotiator, watcher *CompletionWatcher, post func(func()) bool, opts ...ToggleOption) *ToggleStateMachine {
	t := &ToggleStateMachine{
		backend: backend,
		neg:     neg,
		watcher: watcher,
		post:    post,
		status:  NopStatusSink{},
		ui:      NopUIHooks{},
		state:   ToggleOff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State reports the current toggle state.
func (t *ToggleStateMachine) State() ToggleState { return t.state }

// CurrentSeq reports the sequence number of the tracked utterance. Zero
// means no utterance has been started yet.
func (t *ToggleStateMachine) CurrentSeq() uint64 { return t.seq }

// Enable arms the toggle. A no-op unless the machine is Off.
func (t *ToggleStateMachine) Enable() {
	if t.state != ToggleOff {
		return
	}
	t.state = ToggleIdle
	t.status.SetStatus(StatusReady)
	slog.Debug("voice: toggle enabled")
}

// Disable disarms the toggle from any state, stopping in-flight speech
// and cancelling the completion watcher.
func (t *ToggleStateMachine) Disable() {
	if t.state == ToggleOff {
		return
	}
	t.watcher.Cancel()
	t.seq++ // invalidate any completion already queued
	if t.state == ToggleSpeaking || t.state == TogglePaused {
		t.backend.Stop()
	}
	t.state = ToggleOff
	t.status.SetStatus(StatusReady)
	slog.Debug("voice: toggle disabled")
}

// BeginUtterance submits text to the backend and, on success, tracks it
// as the current utterance with a fresh sequence number and an armed
// completion watcher. Returns the assigned sequence number, or false if
// the toggle is off or the backend rejected the text.
func (t *ToggleStateMachine) BeginUtterance(ctx context.Context, text string) (uint64, bool) {
	if t.state == ToggleOff {
		return 0, false
	}
	if !t.backend.Speak(text) {
		slog.Warn("voice: backend rejected utterance", "chars", len(text))
		t.status.SetStatus(StatusError)
		return 0, false
	}
	t.watcher.Cancel()
	t.seq++
	t.state = ToggleSpeaking
	t.status.SetStatus(StatusSpeaking)
	t.watcher.Watch(ctx, t.seq, t.completed)
	return t.seq, true
}

// completed handles a natural end-of-utterance delivered by the watcher.
func (t *ToggleStateMachine) completed(seq uint64) {
	if seq != t.seq {
		observe.DefaultMetrics().RecordStaleEvent(context.Background(), "completion")
		slog.Debug("voice: discarding stale completion", "seq", seq, "current", t.seq)
		return
	}
	if t.state != ToggleSpeaking {
		return
	}
	t.state = ToggleIdle
	t.status.SetStatus(StatusReady)
	if t.onCompletion != nil {
		t.onCompletion(seq)
	}
}

// OnSingleClick toggles pause/resume for the active utterance. In Idle
// or Off there is nothing to control and the click is ignored. The
// negotiation runs on a background goroutine and its outcome is posted
// back to the event loop, so the click handler returns immediately.
func (t *ToggleStateMachine) OnSingleClick(ctx context.Context) {
	if t.negotiating {
		return
	}
	switch t.state {
	case ToggleSpeaking:
		t.negotiate(ctx, t.seq, t.neg.RequestPause, TogglePaused, StatusPaused)
	case TogglePaused:
		t.negotiate(ctx, t.seq, t.neg.RequestResume, ToggleSpeaking, StatusSpeaking)
	default:
		// No active utterance; deliberate no-op.
	}
}

func (t *ToggleStateMachine) negotiate(ctx context.Context, seq uint64, request func(context.Context) bool, next ToggleState, label Status) {
	from := t.state
	t.negotiating = true
	go func() {
		ok := request(ctx)
		t.post(func() {
			t.negotiating = false
			if !ok {
				// State unchanged; the failure was already recorded by
				// the negotiator.
				return
			}
			if seq != t.seq || t.state != from {
				observe.DefaultMetrics().RecordStaleEvent(context.Background(), "negotiation")
				slog.Debug("voice: discarding stale negotiation result", "seq", seq, "current", t.seq)
				return
			}
			t.state = next
			t.status.SetStatus(label)
		})
	}()
}

// OnDoubleClick stops any speech outright and reveals the host UI,
// regardless of prior state. An armed toggle lands back in Idle; a
// disarmed one stays Off.
func (t *ToggleStateMachine) OnDoubleClick() {
	t.watcher.Cancel()
	t.seq++
	t.backend.Stop()
	if t.state != ToggleOff {
		t.state = ToggleIdle
		t.status.SetStatus(StatusReady)
	}
	t.ui.Reveal()
	slog.Debug("voice: stop-and-reveal")
}
