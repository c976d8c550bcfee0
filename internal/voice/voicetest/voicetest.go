// Package voicetest provides test doubles for the voice controller's
// collaborators.
//
// [Backend] is a scriptable speech.Backend: tests drive playback state by
// hand (FinishSpeaking, InjectTranscript) and can simulate the audio
// startup-latency window where pause requests fail. All doubles are safe
// for concurrent use so tests can poke them from watcher goroutines.
package voicetest

import (
	"sync"

	"github.com/talvox/talvox/internal/voice"
	"github.com/talvox/talvox/pkg/speech"
)

// Backend is a mock implementation of speech.Backend.
// Zero value is ready to use: Speak succeeds and pause/resume succeed on
// the first attempt.
type Backend struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// RejectSpeak makes Speak return false without changing state.
	RejectSpeak bool

	// PauseFailures is how many Pause calls fail before one succeeds,
	// simulating the audio stream's startup latency.
	PauseFailures int

	// ResumeFailures is the Resume counterpart of PauseFailures.
	ResumeFailures int

	speaking bool
	paused   bool

	listening    bool
	onTranscript func(string)
	onStopWord   func()

	// --- Call records (read after test) ---

	speakCalls   []string
	stopCalls    int
	pauseCalls   int
	resumeCalls  int
	listenCalls  int
	stopListens  int
	cleanupCalls int
}

var _ speech.Backend = (*Backend)(nil)

// Speak records the call and, unless RejectSpeak is set, marks the
// backend as speaking.
func (b *Backend) Speak(text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speakCalls = append(b.speakCalls, text)
	if b.RejectSpeak {
		return false
	}
	b.speaking = true
	b.paused = false
	return true
}

// Stop halts playback immediately.
func (b *Backend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCalls++
	b.speaking = false
	b.paused = false
}

// Pause fails while PauseFailures attempts remain, then succeeds if the
// backend is speaking.
func (b *Backend) Pause() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pauseCalls++
	if b.PauseFailures > 0 {
		b.PauseFailures--
		return false
	}
	if !b.speaking || b.paused {
		return false
	}
	b.paused = true
	return true
}

// Resume fails while ResumeFailures attempts remain, then succeeds if the
// backend is paused.
func (b *Backend) Resume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumeCalls++
	if b.ResumeFailures > 0 {
		b.ResumeFailures--
		return false
	}
	if !b.paused {
		return false
	}
	b.paused = false
	return true
}

// IsSpeaking reports whether playback is active and not paused.
func (b *Backend) IsSpeaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speaking && !b.paused
}

// IsPaused reports whether playback is paused.
func (b *Backend) IsPaused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// State reports the combined playback state.
func (b *Backend) State() speech.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.paused:
		return speech.StatePaused
	case b.speaking:
		return speech.StateSpeaking
	default:
		return speech.StateIdle
	}
}

// Listen records the callbacks for later injection.
func (b *Backend) Listen(onTranscript func(string), onStopWord func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listenCalls++
	b.listening = true
	b.onTranscript = onTranscript
	b.onStopWord = onStopWord
}

// StopListening clears the listening state. The recorded callbacks are
// kept so a test can still assert against them.
func (b *Backend) StopListening() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopListens++
	b.listening = false
}

// Cleanup records the call and resets all playback state.
func (b *Backend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupCalls++
	b.speaking = false
	b.paused = false
	b.listening = false
}

// FinishSpeaking simulates the current utterance ending naturally.
func (b *Backend) FinishSpeaking() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speaking = false
	b.paused = false
}

// InjectTranscript invokes the recorded transcript callback as the real
// backend would, from the caller's goroutine. Reports false if no
// listener is registered.
func (b *Backend) InjectTranscript(text string) bool {
	b.mu.Lock()
	fn := b.onTranscript
	listening := b.listening
	b.mu.Unlock()
	if !listening || fn == nil {
		return false
	}
	fn(text)
	return true
}

// InjectStopWord invokes the recorded stop-word callback. Reports false
// if no listener is registered.
func (b *Backend) InjectStopWord() bool {
	b.mu.Lock()
	fn := b.onStopWord
	listening := b.listening
	b.mu.Unlock()
	if !listening || fn == nil {
		return false
	}
	fn()
	return true
}

// Listening reports whether Listen is active.
func (b *Backend) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listening
}

// SpeakCalls returns a copy of every text passed to Speak, in order.
func (b *Backend) SpeakCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.speakCalls))
	copy(out, b.speakCalls)
	return out
}

// StopCalls returns how many times Stop was called.
func (b *Backend) StopCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopCalls
}

// PauseCalls returns how many times Pause was called.
func (b *Backend) PauseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pauseCalls
}

// ResumeCalls returns how many times Resume was called.
func (b *Backend) ResumeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resumeCalls
}

// ListenCalls returns how many times Listen was called.
func (b *Backend) ListenCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listenCalls
}

// CleanupCalls returns how many times Cleanup was called.
func (b *Backend) CleanupCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanupCalls
}

// StatusRecorder is a voice.StatusSink that records every label it receives.
type StatusRecorder struct {
	mu       sync.Mutex
	statuses []voice.Status
}

var _ voice.StatusSink = (*StatusRecorder)(nil)

// SetStatus implements voice.StatusSink.
func (r *StatusRecorder) SetStatus(s voice.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

// Statuses returns a copy of all recorded labels, in order.
func (r *StatusRecorder) Statuses() []voice.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]voice.Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// Last returns the most recent label, or "" if none was recorded.
func (r *StatusRecorder) Last() voice.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

// UIRecorder is a voice.UIHooks that counts invocations.
type UIRecorder struct {
	mu      sync.Mutex
	hides   int
	shows   int
	reveals int
}

var _ voice.UIHooks = (*UIRecorder)(nil)

// HideManualInput implements voice.UIHooks.
func (r *UIRecorder) HideManualInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hides++
}

// ShowManualInput implements voice.UIHooks.
func (r *UIRecorder) ShowManualInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shows++
}

// Reveal implements voice.UIHooks.
func (r *UIRecorder) Reveal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reveals++
}

// Hides returns how many times HideManualInput was called.
func (r *UIRecorder) Hides() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hides
}

// Shows returns how many times ShowManualInput was called.
func (r *UIRecorder) Shows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shows
}

// Reveals returns how many times Reveal was called.
func (r *UIRecorder) Reveals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reveals
}
