// Package voiced implements speech.Backend over the voiced speech daemon's
// WebSocket control protocol.
//
// voiced is a local daemon that owns the audio devices: it synthesises
// text to the speakers and streams recogniser transcripts back. The
// client sends JSON commands and consumes JSON events on one connection.
// Commands that can fail (speak, pause, resume) carry an id and are
// answered with an ack event; pause acks report failure while the audio
// stream is still starting up, which is exactly the window the voice
// layer's negotiator retries over.
package voiced

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/talvox/talvox/pkg/speech"
)

// defaultCommandTimeout bounds how long a Speak/Pause/Resume call waits
// for its ack before reporting failure.
const defaultCommandTimeout = 2 * time.Second

// Matcher decides whether a final transcript contains the stop word.
type Matcher interface {
	Match(transcript string) bool
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithCommandTimeout overrides the per-command ack timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStopWordMatcher routes final transcripts through m; a match fires
// the listener's onStopWord callback instead of onTranscript. Without a
// matcher, onStopWord never fires.
func WithStopWordMatcher(m Matcher) Option {
	return func(c *Client) {
		c.matcher = m
	}
}

// command is one request to the daemon.
type command struct {
	Type string `json:"type"`
	ID   uint64 `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// event is one message from the daemon.
type event struct {
	Type     string `json:"type"`
	ID       uint64 `json:"id,omitempty"`
	OK       bool   `json:"ok,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Paused   bool   `json:"paused,omitempty"`
	Text     string `json:"text,omitempty"`
	Final    bool   `json:"final,omitempty"`
}

// Client is a live connection to the voiced daemon. It implements
// [speech.Backend] and is safe for concurrent use.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	matcher Matcher

	writeMu sync.Mutex

	mu           sync.Mutex
	speaking     bool
	paused       bool
	listening    bool
	onTranscript func(string)
	onStopWord   func()
	pending      map[uint64]chan bool
	nextID       uint64

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ speech.Backend = (*Client)(nil)

// Dial connects to the daemon at wsURL (e.g. "ws://127.0.0.1:8787/control").
// The returned Client owns the connection; release it with
// [Client.Cleanup].
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Client, error) {
	if wsURL == "" {
		return nil, errors.New("voiced: wsURL must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("voiced: dial %s: %w", wsURL, err)
	}

	c := &Client{
		conn:    conn,
		timeout: defaultCommandTimeout,
		pending: make(map[uint64]chan bool),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// Speak submits text for synthesis. Returns false if the daemon rejected
// the request or did not ack in time. A true return means synthesis was
// accepted, not that audio is already audible.
func (c *Client) Speak(text string) bool {
	ok := c.roundTrip("speak", text)
	if ok {
		c.mu.Lock()
		c.speaking = true
		c.paused = false
		c.mu.Unlock()
	}
	return ok
}

// Stop halts synthesis immediately. Fire-and-forget.
func (c *Client) Stop() {
	c.send(command{Type: "stop"})
	c.mu.Lock()
	c.speaking = false
	c.paused = false
	c.mu.Unlock()
}

// Pause asks the daemon to suspend playback. Returns false while the
// audio stream has not started producing sound yet; callers retry.
func (c *Client) Pause() bool {
	ok := c.roundTrip("pause", "")
	if ok {
		c.mu.Lock()
		c.paused = true
		c.mu.Unlock()
	}
	return ok
}

// Resume continues paused playback.
func (c *Client) Resume() bool {
	ok := c.roundTrip("resume", "")
	if ok {
		c.mu.Lock()
		c.paused = false
		c.mu.Unlock()
	}
	return ok
}

// IsSpeaking reports whether playback is active and not paused, per the
// daemon's most recent state event.
func (c *Client) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking && !c.paused
}

// IsPaused reports whether playback is paused.
func (c *Client) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// State reports the combined playback state.
func (c *Client) State() speech.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.paused:
		return speech.StatePaused
	case c.speaking:
		return speech.StateSpeaking
	default:
		return speech.StateIdle
	}
}

// Listen starts the recogniser. Final transcripts are delivered to
// onTranscript; ones matching the stop word fire onStopWord instead.
// Callbacks run on the client's read goroutine, so they must hand off to
// their own scheduling (the voice layer posts them onto its event loop).
func (c *Client) Listen(onTranscript func(string), onStopWord func()) {
	c.mu.Lock()
	c.onTranscript = onTranscript
	c.onStopWord = onStopWord
	c.listening = true
	c.mu.Unlock()
	c.send(command{Type: "listen"})
}

// StopListening halts the recogniser. Transcripts already in flight are
// dropped.
func (c *Client) StopListening() {
	c.mu.Lock()
	c.listening = false
	c.mu.Unlock()
	c.send(command{Type: "stop_listening"})
}

// Cleanup tears the connection down. The client is unusable afterwards.
func (c *Client) Cleanup() {
	c.once.Do(func() {
		close(c.done)
		c.send(command{Type: "stop"})
		c.conn.Close(websocket.StatusNormalClosure, "client closed")
		c.wg.Wait()

		// Fail anything still waiting for an ack.
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	})
}

// roundTrip sends a command with an id and waits for its ack.
func (c *Client) roundTrip(typ, text string) bool {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return false
	default:
	}
	c.nextID++
	id := c.nextID
	ack := make(chan bool, 1)
	c.pending[id] = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if !c.send(command{Type: typ, ID: id, Text: text}) {
		return false
	}

	select {
	case ok := <-ack:
		return ok
	case <-time.After(c.timeout):
		slog.Warn("voiced: command ack timed out", "type", typ, "id", id)
		return false
	case <-c.done:
		return false
	}
}

// send marshals and writes one command. Reports false on write failure.
func (c *Client) send(cmd command) bool {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		slog.Debug("voiced: write failed", "type", cmd.Type, "error", err)
		return false
	}
	return true
}

// readLoop consumes daemon events until the connection dies.
func (c *Client) readLoop() {
	defer c.wg.Done()
	ctx := context.Background()

	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			// Normal close or connection loss; either way the client is done.
			return
		}

		var ev event
		if err := json.Unmarshal(msg, &ev); err != nil {
			slog.Debug("voiced: malformed event", "error", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev event) {
	switch ev.Type {
	case "ack":
		c.mu.Lock()
		ch, ok := c.pending[ev.ID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- ev.OK:
			default:
			}
		}

	case "state":
		c.mu.Lock()
		c.speaking = ev.Speaking
		c.paused = ev.Paused
		c.mu.Unlock()

	case "transcript":
		if !ev.Final || ev.Text == "" {
			return
		}
		c.mu.Lock()
		listening := c.listening
		onTranscript := c.onTranscript
		onStopWord := c.onStopWord
		c.mu.Unlock()
		if !listening {
			return
		}
		if c.matcher != nil && c.matcher.Match(ev.Text) {
			if onStopWord != nil {
				onStopWord()
			}
			return
		}
		if onTranscript != nil {
			onTranscript(ev.Text)
		}

	default:
		slog.Debug("voiced: unknown event type", "type", ev.Type)
	}
}
