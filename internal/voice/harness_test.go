package voice_test

import (
	"testing"
	"time"

	"github.com/talvox/talvox/internal/eventloop"
)

// waitFor pumps loop until cond holds or timeout elapses. Background
// goroutines (negotiators, watchers) post their results onto the loop, so
// pumping between checks is what lets them land.
func waitFor(t *testing.T, loop *eventloop.Loop, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		loop.Pump()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	loop.Pump()
	if !cond() {
		t.Fatalf("timed out after %v waiting for %s", timeout, msg)
	}
}

// settle pumps loop for the full duration, letting any pending background
// activity land without requiring a condition to become true.
func settle(loop *eventloop.Loop, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		loop.Pump()
		time.Sleep(time.Millisecond)
	}
	loop.Pump()
}
