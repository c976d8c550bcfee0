// Package speech defines the Backend interface over a speech engine that
// provides both text-to-speech playback and continuous speech recognition.
//
// A Backend wraps an external engine (typically a local speech daemon, see
// the voiced subpackage) and exposes the narrow control surface the voice
// controller needs: start/stop/pause/resume for synthesis, a listening
// session for recognition, and cheap state queries.
//
// # Timing caveats
//
// Backends are non-deterministic with respect to startup latency: the audio
// stream behind Speak takes an unpredictable amount of time to actually
// produce sound, and a Pause issued inside that window is a no-op that
// reports failure. Callers that need reliable pause semantics should retry
// (see internal/voice.PauseResumeNegotiator) rather than assume the first
// Pause lands.
//
// All methods must tolerate being invoked from background goroutines.
// Implementations are responsible for their own synchronisation.
package speech

// State is a snapshot of the synthesis side of the backend.
type State int

const (
	// StateIdle means no utterance is playing or paused.
	StateIdle State = iota

	// StateSpeaking means an utterance is actively producing audio.
	StateSpeaking

	// StatePaused means an utterance is mid-playback but suspended.
	StatePaused
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Backend is the capability surface of a speech engine.
//
// The boolean returns on Speak, Pause and Resume report whether the engine
// accepted the request; they never carry transport errors. A false from
// Pause issued right after Speak usually means the audio stream has not
// started yet and the request should be retried.
type Backend interface {
	// Speak starts synthesising text. Returns true if playback was accepted.
	// Any utterance already playing is replaced.
	Speak(text string) bool

	// Stop aborts the current utterance, if any. Safe to call when idle.
	Stop()

	// Pause suspends the current utterance. Returns false when there is
	// nothing to pause or when the audio stream has not started yet.
	Pause() bool

	// Resume continues a paused utterance. Returns false when nothing is
	// paused or the engine could not resume.
	Resume() bool

	// IsSpeaking reports whether an utterance is actively producing audio.
	IsSpeaking() bool

	// IsPaused reports whether an utterance is suspended mid-playback.
	IsPaused() bool

	// State returns the synthesis state snapshot. Equivalent to deriving
	// the state from IsPaused/IsSpeaking but atomic on the engine side.
	State() State

	// Listen starts a continuous recognition session. onTranscript is
	// invoked with each final transcript; onStopWord is invoked when the
	// engine's keyword spotter hears the configured stop word. Both
	// callbacks may be invoked from the engine's own goroutines.
	// Calling Listen while already listening is a no-op.
	Listen(onTranscript func(text string), onStopWord func())

	// StopListening ends the recognition session. Safe to call when not
	// listening.
	StopListening()

	// Cleanup releases engine resources. The backend is unusable afterwards.
	Cleanup()
}
