// Package generate produces assistant replies for the voice loop.
//
// The central type is [Gateway], the opaque async surface the voice
// controller calls with a transcript and awaits a reply from. The
// production implementation, [ProviderGateway], builds a prompt from the
// session history and delegates to an [llm.Provider]; [FallbackGateway]
// composes several gateways with per-entry breakers so a failing primary
// provider is bypassed in favour of healthy fallbacks.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/talvox/talvox/internal/session"
	"github.com/talvox/talvox/pkg/provider/llm"
)

// ErrEmptyTranscript is returned when Generate is called with no usable text.
var ErrEmptyTranscript = errors.New("generate: empty transcript")

// ErrEmptyReply is returned when the provider produced no text to speak.
var ErrEmptyReply = errors.New("generate: provider returned empty reply")

// defaultSystemPrompt keeps spoken replies short; long answers read badly
// aloud.
const defaultSystemPrompt = "You are a helpful voice assistant. " +
	"Answer concisely in plain spoken language, without markdown or lists."

// Gateway produces one assistant reply for one user transcript. Generate
// may take seconds; callers must invoke it off the event loop and post
// the result back. Implementations must be safe for concurrent use.
type Gateway interface {
	Generate(ctx context.Context, text string) (string, error)
}

// ProviderGateway implements [Gateway] over an [llm.Provider], building
// the prompt from the session history so the model sees the whole
// conversation, not just the latest transcript.
type ProviderGateway struct {
	provider     llm.Provider
	history      *session.History
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// ProviderGatewayConfig configures a [ProviderGateway].
type ProviderGatewayConfig struct {
	// Provider is the LLM backend. Must not be nil.
	Provider llm.Provider

	// History supplies the conversation context for prompt building.
	// Must not be nil.
	History *session.History

	// SystemPrompt overrides the default voice-assistant instruction.
	SystemPrompt string

	// Temperature is passed through to the provider. Zero means the
	// provider default.
	Temperature float64

	// MaxTokens caps the reply length. Defaults to a quarter of the
	// model's MaxOutputTokens if zero; spoken replies should be short.
	MaxTokens int
}

// NewProviderGateway creates a [ProviderGateway] with the given configuration.
func NewProviderGateway(cfg ProviderGatewayConfig) (*ProviderGateway, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("generate: Provider must not be nil")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("generate: History must not be nil")
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		if out := cfg.Provider.Capabilities().MaxOutputTokens; out > 0 {
			maxTokens = out / 4
		}
	}
	return &ProviderGateway{
		provider:     cfg.Provider,
		history:      cfg.History,
		systemPrompt: prompt,
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
	}, nil
}

// Generate implements [Gateway].
func (g *ProviderGateway) Generate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     g.buildMessages(text),
		SystemPrompt: g.systemPrompt,
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate: completion: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// buildMessages converts the history snapshot into provider messages. The
// controller appends the user transcript before calling Generate, so text
// is normally already the last entry; if it is not (empty history, direct
// call), it is appended explicitly.
func (g *ProviderGateway) buildMessages(text string) []llm.Message {
	snap := g.history.Snapshot()
	msgs := make([]llm.Message, 0, len(snap)+1)
	for _, m := range snap {
		msgs = append(msgs, llm.Message{
			Role:    string(m.Role),
			Content: m.Text,
		})
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != string(session.RoleUser) || msgs[len(msgs)-1].Content != text {
		msgs = append(msgs, llm.Message{Role: string(session.RoleUser), Content: text})
	}
	return msgs
}
