package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultMaxMessages bounds how many history entries a prompt snapshot
// may carry.
const defaultMaxMessages = 50

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn recorded by the voice loop.
type Message struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// History is the per-chat-window conversation record. The voice
// controller appends a user entry for each transcript and an assistant
// entry for each spoken reply; prompt building reads a bounded snapshot.
// It lives exactly as long as its window and is reset on teardown.
//
// All methods are safe for concurrent use: appends arrive from the event
// loop while generation workers take snapshots.
type History struct {
	id          string
	maxMessages int

	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

// HistoryConfig configures a [History].
type HistoryConfig struct {
	// MaxMessages caps how many recent entries [History.Snapshot]
	// returns. Defaults to 50 if zero or negative.
	MaxMessages int
}

// NewHistory creates an empty [History] with a fresh session ID.
func NewHistory(cfg HistoryConfig) *History {
	maxMsgs := cfg.MaxMessages
	if maxMsgs <= 0 {
		maxMsgs = defaultMaxMessages
	}
	return &History{
		id:          uuid.NewString(),
		maxMessages: maxMsgs,
		messages:    make([]Message, 0),
		now:         time.Now,
	}
}

// ID returns the session identifier.
func (h *History) ID() string { return h.id }

// AppendUser records one recognized user utterance.
func (h *History) AppendUser(text string) {
	h.append(Message{Role: RoleUser, Text: text})
}

// AppendAssistant records one generated assistant reply.
func (h *History) AppendAssistant(text string) {
	h.append(Message{Role: RoleAssistant, Text: text})
}

func (h *History) append(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m.Timestamp = h.now()
	h.messages = append(h.messages, m)
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Snapshot returns a copy of the most recent entries, at most
// MaxMessages of them, oldest first. The copy is safe to read while
// appends continue.
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := h.messages
	if len(msgs) > h.maxMessages {
		msgs = msgs[len(msgs)-h.maxMessages:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Reset clears the history. The session ID is retained.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}
