package voice

import (
	"context"
	"log/slog"
	"time"

	"github.com/talvox/talvox/internal/observe"
	"github.com/talvox/talvox/pkg/speech"
)

const (
	// defaultPauseAttempts bounds the retry loop against the backend's
	// startup-latency window.
	defaultPauseAttempts = 5

	// defaultRetryDelay is the gap between attempts.
	defaultRetryDelay = 100 * time.Millisecond
)

// PauseResumeNegotiator resolves the race between a pause/resume request and
// the backend's audio stream startup. A Pause issued immediately after Speak
// fails silently while the stream is still starting; retrying a bounded
// number of times with a short delay absorbs that window without the caller
// knowing anything about the backend's internals.
//
// Resume is retried with the same strategy. The engine is believed to accept
// Resume the instant IsPaused reports true, but nothing guarantees it, and
// the retry costs nothing when the first attempt lands.
//
// RequestPause and RequestResume sleep between attempts and must be called
// from a background goroutine, never from the event loop.
type PauseResumeNegotiator struct {
	backend speech.Backend

	maxAttempts int
	retryDelay  time.Duration
}

// NewPauseResumeNegotiator creates a negotiator over backend. Non-positive
// maxAttempts or retryDelay select the defaults (5 attempts, 100 ms).
func NewPauseResumeNegotiator(backend speech.Backend, maxAttempts int, retryDelay time.Duration) *PauseResumeNegotiator {
	if maxAttempts <= 0 {
		maxAttempts = defaultPauseAttempts
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &PauseResumeNegotiator{
		backend:     backend,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// RequestPause asks the backend to pause the current utterance, retrying
// while the audio stream is still starting up.
//
// It returns false immediately when nothing is speaking (the utterance may
// have ended naturally before the user's click was processed) and false when
// every attempt was rejected. The caller leaves its state unchanged on
// failure.
func (n *PauseResumeNegotiator) RequestPause(ctx context.Context) bool {
	return n.negotiate(ctx, "pause", n.backend.IsSpeaking, n.backend.Pause)
}

// RequestResume asks the backend to resume a paused utterance, with the same
// bounded retry as RequestPause.
func (n *PauseResumeNegotiator) RequestResume(ctx context.Context) bool {
	return n.negotiate(ctx, "resume", n.backend.IsPaused, n.backend.Resume)
}

// negotiate runs the shared retry loop. precondition guards each attempt:
// when it turns false the target state is unreachable (speech ended, or was
// never paused) and the negotiation aborts without calling request again.
func (n *PauseResumeNegotiator) negotiate(ctx context.Context, op string, precondition func() bool, request func() bool) bool {
	met := observe.DefaultMetrics()

	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if !precondition() {
			met.RecordNegotiation(ctx, op, "aborted", attempt-1)
			return false
		}

		if request() {
			met.RecordNegotiation(ctx, op, "ok", attempt)
			if attempt > 1 {
				slog.Debug("voice: negotiation succeeded after retry", "op", op, "attempt", attempt)
			}
			return true
		}

		if attempt == n.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			met.RecordNegotiation(ctx, op, "cancelled", attempt)
			return false
		case <-time.After(n.retryDelay):
		}
	}

	met.RecordNegotiation(ctx, op, "exhausted", n.maxAttempts)
	slog.Debug("voice: negotiation exhausted", "op", op, "attempts", n.maxAttempts)
	return false
}
