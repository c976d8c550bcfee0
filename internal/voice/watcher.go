package voice

import (
	"context"
	"time"

	"github.com/talvox/talvox/pkg/speech"
)

const defaultPollInterval = 100 * time.Millisecond

// CompletionWatcher observes a single playback until the backend reports
// the utterance is over, then delivers the utterance sequence number
// back onto the event loop. A paused utterance is still live: the watcher
// keeps polling through pauses and only fires once the backend is neither
// speaking nor paused. A watcher is single-use: one Watch call per
// utterance, cancelled when a newer utterance supersedes it.
type CompletionWatcher struct {
	backend      speech.Backend
	pollInterval time.Duration
	post         func(func()) bool

	cancel context.CancelFunc
}

// NewCompletionWatcher builds a watcher that polls backend at interval
// and posts completions through post. A zero interval selects the
// default of 100ms.
func NewCompletionWatcher(backend speech.Backend, interval time.Duration, post func(func()) bool) *CompletionWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &CompletionWatcher{
		backend:      backend,
		pollInterval: interval,
		post:         post,
	}
}

// Watch starts a background poll for the utterance identified by seq.
// When the backend reports the utterance over (not speaking and not
// paused), onDone(seq) is posted to the event loop. Any previously
// started watch is cancelled first, so at most one watcher is ever live;
// a cancelled watcher delivers nothing.
//
// Watch must be called from the event loop.
func (w *CompletionWatcher) Watch(ctx context.Context, seq uint64, onDone func(seq uint64)) {
	w.Cancel()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if w.backend.IsSpeaking() || w.backend.IsPaused() {
				// Paused counts as live; only a finished utterance
				// completes.
				continue
			}
			// Deliver on the loop so state transitions stay serialized.
			w.post(func() {
				if ctx.Err() != nil {
					// Superseded between posting and running.
					return
				}
				onDone(seq)
				cancel()
			})
			return
		}
	}()
}

// Cancel stops the live watcher, if any. Safe to call when nothing is
// being watched. Must be called from the event loop.
func (w *CompletionWatcher) Cancel() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}
