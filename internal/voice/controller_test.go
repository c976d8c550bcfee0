package voice_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/talvox/talvox/internal/eventloop"
	"github.com/talvox/talvox/internal/session"
	"github.com/talvox/talvox/internal/voice"
	"github.com/talvox/talvox/internal/voice/voicetest"
)

// stubGateway is a scriptable generate.Gateway.
type stubGateway struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls []string
}

func (g *stubGateway) Generate(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, text)
	reply, err, delay := g.reply, g.err, g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return reply, err
}

func (g *stubGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type controllerHarness struct {
	loop    *eventloop.Loop
	backend *voicetest.Backend
	status  *voicetest.StatusRecorder
	ui      *voicetest.UIRecorder
	gateway *stubGateway
	history *session.History
	toggle  *voice.ToggleStateMachine
	ctrl    *voice.VoiceModeController
}

func newControllerHarness(t *testing.T, opts ...voice.ControllerOption) *controllerHarness {
	t.Helper()
	h := &controllerHarness{
		loop:    eventloop.New(),
		backend: &voicetest.Backend{},
		status:  &voicetest.StatusRecorder{},
		ui:      &voicetest.UIRecorder{},
		gateway: &stubGateway{reply: "ok"},
		history: session.NewHistory(session.HistoryConfig{}),
	}
	t.Cleanup(h.loop.Close)

	neg := voice.NewPauseResumeNegotiator(h.backend, 5, toggleRetryDelay)
	watcher := voice.NewCompletionWatcher(h.backend, togglePollInterval, h.loop.Post)
	h.toggle = voice.NewToggleStateMachine(h.backend, neg, watcher, h.loop.Post,
		voice.WithStatusSink(h.status),
		voice.WithCompletionHandler(func(uint64) {
			h.ctrl.OnUtteranceComplete(context.Background())
		}),
	)

	opts = append([]voice.ControllerOption{
		voice.WithControllerStatusSink(h.status),
		voice.WithControllerUIHooks(h.ui),
		voice.WithGreeting(""), // most tests don't want the greeting turn
	}, opts...)
	h.ctrl = voice.NewVoiceModeController(h.backend, h.gateway, h.toggle, h.history, h.loop.Post, opts...)
	return h
}

func TestController_FullTurn(t *testing.T) {
	h := newControllerHarness(t)
	h.gateway.reply = "It's sunny"

	h.ctrl.Enable(context.Background())
	if got := h.ctrl.State(); got != voice.ModeListening {
		t.Fatalf("state after enable = %v, want listening", got)
	}
	if h.ui.Hides() != 1 {
		t.Errorf("manual input hidden %d times, want 1", h.ui.Hides())
	}

	if !h.backend.InjectTranscript("what is the weather") {
		t.Fatal("no transcript listener registered")
	}
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeSpeaking
	}, "generation to produce speech")

	if got := h.backend.SpeakCalls(); len(got) != 1 || got[0] != "It's sunny" {
		t.Fatalf("speak calls = %v, want [It's sunny]", got)
	}

	h.backend.FinishSpeaking()
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeListening
	}, "utterance completion to return to listening")

	if got := h.status.Last(); got != voice.StatusListening {
		t.Errorf("status = %q, want LISTENING", got)
	}

	// Both turns are recorded.
	snap := h.history.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("history has %d entries, want 2", len(snap))
	}
	if snap[0].Role != session.RoleUser || snap[0].Text != "what is the weather" {
		t.Errorf("first entry = %+v", snap[0])
	}
	if snap[1].Role != session.RoleAssistant || snap[1].Text != "It's sunny" {
		t.Errorf("second entry = %+v", snap[1])
	}
}

func TestController_GreetingIsSpokenOnEnable(t *testing.T) {
	h := newControllerHarness(t, voice.WithGreeting("Hello."))

	h.ctrl.Enable(context.Background())

	if got := h.backend.SpeakCalls(); len(got) != 1 || got[0] != "Hello." {
		t.Fatalf("speak calls = %v, want [Hello.]", got)
	}
	if got := h.ctrl.State(); got != voice.ModeSpeaking {
		t.Fatalf("state = %v, want speaking", got)
	}

	h.backend.FinishSpeaking()
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeListening
	}, "greeting to finish")
}

func TestController_GenerationFailureReturnsToListening(t *testing.T) {
	h := newControllerHarness(t)
	h.gateway.reply = ""
	h.gateway.err = errors.New("provider down")

	h.ctrl.Enable(context.Background())
	h.backend.InjectTranscript("hello?")

	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeListening && h.gateway.callCount() == 1
	}, "failed generation to land")

	if got := h.backend.SpeakCalls(); len(got) != 0 {
		t.Errorf("speak calls = %v, want none", got)
	}
	// ERROR stays visible while listening resumes underneath; flashing
	// LISTENING in the same task would hide it before any display ticked.
	if got := h.status.Last(); got != voice.StatusError {
		t.Errorf("status = %q, want ERROR to stay visible", got)
	}

	// The next transcript replaces the error with normal turn statuses.
	h.gateway.mu.Lock()
	h.gateway.err = nil
	h.gateway.reply = "recovered"
	h.gateway.mu.Unlock()

	h.backend.InjectTranscript("still there?")
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeSpeaking
	}, "turn after a failure to recover")
	if got := h.status.Last(); got != voice.StatusSpeaking {
		t.Errorf("status = %q, want SPEAKING after recovery", got)
	}
}

func TestController_StopWordWhileSpeakingDisables(t *testing.T) {
	h := newControllerHarness(t)

	h.ctrl.Enable(context.Background())
	h.backend.InjectTranscript("tell me something")
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeSpeaking
	}, "reply to start speaking")

	// StopListening keeps the callbacks recorded, so the stop word can
	// still arrive while the reply plays (the recogniser drains its last
	// buffer asynchronously).
	h.backend.Listen(func(string) {}, func() { h.loop.Post(h.ctrl.Disable) })
	h.backend.InjectStopWord()
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeIdle
	}, "stop word to disable the mode")

	if got := h.backend.StopCalls(); got == 0 {
		t.Error("backend.Stop never called")
	}
	if h.ui.Shows() != 1 {
		t.Errorf("manual input shown %d times, want 1", h.ui.Shows())
	}
	if got := h.status.Last(); got != voice.StatusReady {
		t.Errorf("status = %q, want READY", got)
	}
}

func TestController_StopWordWhileListeningDisables(t *testing.T) {
	h := newControllerHarness(t)

	h.ctrl.Enable(context.Background())
	if !h.backend.InjectStopWord() {
		t.Fatal("no stop-word listener registered")
	}
	waitFor(t, h.loop, toggleWait, func() bool {
		return h.ctrl.State() == voice.ModeIdle
	}, "stop word to disable the mode")

	if h.ui.Shows() != 1 {
		t.Errorf("manual input shown %d times, want 1", h.ui.Shows())
	}
}

func TestController_DisableIsSafeFromAnyState(t *testing.T) {
	states := []struct {
		name    string
		prepare func(t *testing.T, h *controllerHarness)
	}{
		{"idle", func(t *testing.T, h *controllerHarness) {}},
		{"listening", func(t *testing.T, h *controllerHarness) {
			h.ctrl.Enable(context.Background())
		}},
		{"processing", func(t *testing.T, h *controllerHarness) {
			h.gateway.delay = time.Second
			h.ctrl.Enable(context.Background())
			h.backend.InjectTranscript("slow question")
		}},
		{"speaking", func(t *testing.T, h *controllerHarness) {
			h.ctrl.Enable(context.Background())
			h.backend.InjectTranscript("question")
			waitFor(t, h.loop, toggleWait, func() bool {
				return h.ctrl.State() == voice.ModeSpeaking
			}, "reply to start speaking")
		}},
	}

	for _, tc := range states {
		t.Run(tc.name, func(t *testing.T) {
			h := newControllerHarness(t)
			tc.prepare(t, h)

			h.ctrl.Disable()
			settle(h.loop, 20*time.Millisecond)

			if got := h.ctrl.State(); got != voice.ModeIdle {
				t.Errorf("state = %v, want idle", got)
			}
			// Disable again; must be idempotent.
			h.ctrl.Disable()
		})
	}
}

func TestController_StaleGenerationResultIsDiscarded(t *testing.T) {
	h := newControllerHarness(t)
	h.gateway.delay = 30 * time.Millisecond
	h.gateway.reply = "too late"

	h.ctrl.Enable(context.Background())
	h.backend.InjectTranscript("question")
	h.loop.Pump()
	if got := h.ctrl.State(); got != voice.ModeProcessing {
		t.Fatalf("state = %v, want processing", got)
	}

	// The user bails out before the reply arrives.
	h.ctrl.Disable()
	settle(h.loop, 60*time.Millisecond)

	if got := h.backend.SpeakCalls(); len(got) != 0 {
		t.Errorf("speak calls = %v, want none (result was stale)", got)
	}
	if got := h.ctrl.State(); got != voice.ModeIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestController_NeverListeningWhileSpeaking(t *testing.T) {
	// Randomized interleavings of transcript, stop-word, completion and
	// re-enable events; after every step the recogniser and the speaker
	// must not be active at the same time.
	rng := rand.New(rand.NewSource(1))
	h := newControllerHarness(t)

	check := func() {
		if h.backend.Listening() && h.backend.IsSpeaking() {
			t.Fatal("backend is listening and speaking simultaneously")
		}
		if h.ctrl.State() == voice.ModeListening && h.backend.IsSpeaking() {
			t.Fatal("mode is listening while backend is speaking")
		}
	}

	h.ctrl.Enable(context.Background())
	for i := 0; i < 1000; i++ {
		switch rng.Intn(4) {
		case 0:
			h.backend.InjectTranscript("question")
		case 1:
			h.backend.InjectStopWord()
		case 2:
			h.backend.FinishSpeaking()
		case 3:
			if h.ctrl.State() == voice.ModeIdle {
				h.ctrl.Enable(context.Background())
			}
		}
		h.loop.Pump()
		check()
		if i%50 == 0 {
			// Let background generations and watchers drain now and then.
			settle(h.loop, 5*time.Millisecond)
			check()
		}
	}
	settle(h.loop, 20*time.Millisecond)
	check()
}
