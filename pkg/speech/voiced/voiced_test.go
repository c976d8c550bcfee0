package voiced_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/talvox/talvox/internal/stopword"
	"github.com/talvox/talvox/pkg/speech"
	"github.com/talvox/talvox/pkg/speech/voiced"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// command mirrors the client's wire format.
type command struct {
	Type string `json:"type"`
	ID   uint64 `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// event mirrors the daemon's wire format.
type event struct {
	Type     string `json:"type"`
	ID       uint64 `json:"id,omitempty"`
	OK       bool   `json:"ok,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Paused   bool   `json:"paused,omitempty"`
	Text     string `json:"text,omitempty"`
	Final    bool   `json:"final,omitempty"`
}

// fakeDaemon is a scripted voiced daemon: it acks commands per ackFor and
// records everything it receives.
type fakeDaemon struct {
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	received []command
	ackFor   func(cmd command) (bool, bool) // (ok, sendAck)
	ready    chan struct{}
}

func startFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	d := &fakeDaemon{
		ready:  make(chan struct{}),
		ackFor: func(cmd command) (bool, bool) { return true, cmd.ID != 0 },
	}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conn = conn
		d.mu.Unlock()
		close(d.ready)

		ctx := context.Background()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var cmd command
			if err := json.Unmarshal(data, &cmd); err != nil {
				continue
			}
			d.mu.Lock()
			d.received = append(d.received, cmd)
			ackFor := d.ackFor
			d.mu.Unlock()

			if ok, send := ackFor(cmd); send {
				d.sendEvent(event{Type: "ack", ID: cmd.ID, OK: ok})
			}
		}
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *fakeDaemon) sendEvent(ev event) {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return
	}
	data, _ := json.Marshal(ev)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func (d *fakeDaemon) commands() []command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]command, len(d.received))
	copy(out, d.received)
	return out
}

func (d *fakeDaemon) waitForCommand(t *testing.T, typ string) command {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, cmd := range d.commands() {
			if cmd.Type == typ {
				return cmd
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("daemon never received a %q command; got %v", typ, d.commands())
	return command{}
}

func dialClient(t *testing.T, d *fakeDaemon, opts ...voiced.Option) *voiced.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := voiced.Dial(ctx, wsURL(d.srv), opts...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(c.Cleanup)
	<-d.ready
	return c
}

func TestDial_RejectsEmptyURL(t *testing.T) {
	if _, err := voiced.Dial(context.Background(), ""); err == nil {
		t.Fatal("Dial accepted an empty URL")
	}
}

func TestClient_SpeakAckedIsSpeaking(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d)

	if !c.Speak("hello world") {
		t.Fatal("Speak = false, want true")
	}
	cmd := d.waitForCommand(t, "speak")
	if cmd.Text != "hello world" {
		t.Errorf("speak text = %q", cmd.Text)
	}
	if !c.IsSpeaking() {
		t.Error("IsSpeaking = false after acked speak")
	}
	if got := c.State(); got != speech.StateSpeaking {
		t.Errorf("State = %v, want speaking", got)
	}
}

func TestClient_PauseRejectedDuringStartup(t *testing.T) {
	d := startFakeDaemon(t)
	d.mu.Lock()
	d.ackFor = func(cmd command) (bool, bool) {
		// The daemon rejects pause while the stream starts up.
		return cmd.Type != "pause", cmd.ID != 0
	}
	d.mu.Unlock()
	c := dialClient(t, d)

	if !c.Speak("hello") {
		t.Fatal("Speak failed")
	}
	if c.Pause() {
		t.Error("Pause = true, want false (daemon rejected)")
	}
	if c.IsPaused() {
		t.Error("IsPaused = true after rejected pause")
	}
}

func TestClient_PauseResumeCycle(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d)

	if !c.Speak("hello") {
		t.Fatal("Speak failed")
	}
	if !c.Pause() {
		t.Fatal("Pause failed")
	}
	if !c.IsPaused() {
		t.Error("IsPaused = false after acked pause")
	}
	if c.IsSpeaking() {
		t.Error("IsSpeaking = true while paused")
	}
	if got := c.State(); got != speech.StatePaused {
		t.Errorf("State = %v, want paused", got)
	}

	if !c.Resume() {
		t.Fatal("Resume failed")
	}
	if !c.IsSpeaking() {
		t.Error("IsSpeaking = false after resume")
	}
}

func TestClient_AckTimeout(t *testing.T) {
	d := startFakeDaemon(t)
	d.mu.Lock()
	d.ackFor = func(command) (bool, bool) { return false, false } // never ack
	d.mu.Unlock()
	c := dialClient(t, d, voiced.WithCommandTimeout(30*time.Millisecond))

	if c.Speak("hello") {
		t.Error("Speak = true although the daemon never acked")
	}
}

func TestClient_StateEventsOverrideLocalCache(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d)

	if !c.Speak("hello") {
		t.Fatal("Speak failed")
	}

	// The utterance ends on the daemon side.
	d.sendEvent(event{Type: "state", Speaking: false, Paused: false})

	deadline := time.Now().Add(time.Second)
	for c.IsSpeaking() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if c.IsSpeaking() {
		t.Error("IsSpeaking = true after the daemon reported idle")
	}
}

func TestClient_ListenDeliversFinalTranscripts(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d)

	transcripts := make(chan string, 4)
	c.Listen(func(text string) { transcripts <- text }, func() {})
	d.waitForCommand(t, "listen")

	d.sendEvent(event{Type: "transcript", Text: "partial wor", Final: false})
	d.sendEvent(event{Type: "transcript", Text: "what is the weather", Final: true})

	select {
	case got := <-transcripts:
		if got != "what is the weather" {
			t.Errorf("transcript = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("final transcript never delivered")
	}

	select {
	case got := <-transcripts:
		t.Errorf("unexpected extra transcript %q (partials must be dropped)", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestClient_StopWordFiresCallback(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d, voiced.WithStopWordMatcher(stopword.New("stop", 0)))

	transcripts := make(chan string, 4)
	stops := make(chan struct{}, 1)
	c.Listen(func(text string) { transcripts <- text }, func() { stops <- struct{}{} })
	d.waitForCommand(t, "listen")

	d.sendEvent(event{Type: "transcript", Text: "please stop", Final: true})

	select {
	case <-stops:
	case <-time.After(3 * time.Second):
		t.Fatal("stop word never fired")
	}
	select {
	case got := <-transcripts:
		t.Errorf("stop-word transcript %q also delivered as a normal transcript", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestClient_StopListeningDropsTranscripts(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d)

	transcripts := make(chan string, 4)
	c.Listen(func(text string) { transcripts <- text }, func() {})
	d.waitForCommand(t, "listen")

	c.StopListening()
	d.waitForCommand(t, "stop_listening")

	d.sendEvent(event{Type: "transcript", Text: "too late", Final: true})

	select {
	case got := <-transcripts:
		t.Errorf("transcript %q delivered after StopListening", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_CleanupIsIdempotent(t *testing.T) {
	d := startFakeDaemon(t)
	c := dialClient(t, d)

	c.Cleanup()
	c.Cleanup()

	if c.Speak("hello") {
		t.Error("Speak succeeded after Cleanup")
	}
}
