package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/talvox/talvox/internal/session"
	"github.com/talvox/talvox/pkg/provider/llm"
	llmmock "github.com/talvox/talvox/pkg/provider/llm/mock"
)

func newGateway(t *testing.T, p llm.Provider) (*ProviderGateway, *session.History) {
	t.Helper()
	h := session.NewHistory(session.HistoryConfig{})
	g, err := NewProviderGateway(ProviderGatewayConfig{
		Provider: p,
		History:  h,
	})
	if err != nil {
		t.Fatalf("NewProviderGateway: %v", err)
	}
	return g, h
}

func TestProviderGateway_Generate(t *testing.T) {
	t.Run("returns the provider reply", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "It's sunny."},
		}
		g, _ := newGateway(t, p)

		reply, err := g.Generate(context.Background(), "what is the weather")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reply != "It's sunny." {
			t.Errorf("reply = %q", reply)
		}
		if len(p.CompleteCalls) != 1 {
			t.Fatalf("provider called %d times, want 1", len(p.CompleteCalls))
		}
	})

	t.Run("builds the prompt from the history", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "ok"},
		}
		g, h := newGateway(t, p)
		h.AppendUser("first question")
		h.AppendAssistant("first answer")
		h.AppendUser("second question")

		if _, err := g.Generate(context.Background(), "second question"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		req := p.CompleteCalls[0].Req
		if req.SystemPrompt == "" {
			t.Error("system prompt not set")
		}
		want := []llm.Message{
			{Role: "user", Content: "first question"},
			{Role: "assistant", Content: "first answer"},
			{Role: "user", Content: "second question"},
		}
		if len(req.Messages) != len(want) {
			t.Fatalf("messages = %v, want %v", req.Messages, want)
		}
		for i := range want {
			if req.Messages[i] != want[i] {
				t.Errorf("message %d = %+v, want %+v", i, req.Messages[i], want[i])
			}
		}
	})

	t.Run("appends the transcript if the history lacks it", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "ok"},
		}
		g, _ := newGateway(t, p)

		if _, err := g.Generate(context.Background(), "direct question"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		msgs := p.CompleteCalls[0].Req.Messages
		if len(msgs) != 1 || msgs[0].Content != "direct question" {
			t.Errorf("messages = %v", msgs)
		}
	})

	t.Run("rejects empty transcripts", func(t *testing.T) {
		p := &llmmock.Provider{}
		g, _ := newGateway(t, p)

		if _, err := g.Generate(context.Background(), "   "); !errors.Is(err, ErrEmptyTranscript) {
			t.Errorf("err = %v, want ErrEmptyTranscript", err)
		}
		if len(p.CompleteCalls) != 0 {
			t.Error("provider was called for an empty transcript")
		}
	})

	t.Run("wraps provider errors", func(t *testing.T) {
		provErr := errors.New("rate limited")
		p := &llmmock.Provider{CompleteErr: provErr}
		g, _ := newGateway(t, p)

		if _, err := g.Generate(context.Background(), "question"); !errors.Is(err, provErr) {
			t.Errorf("err = %v, want wrapped %v", err, provErr)
		}
	})

	t.Run("rejects empty replies", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "  \n "},
		}
		g, _ := newGateway(t, p)

		if _, err := g.Generate(context.Background(), "question"); !errors.Is(err, ErrEmptyReply) {
			t.Errorf("err = %v, want ErrEmptyReply", err)
		}
	})
}

func TestNewProviderGateway_Validation(t *testing.T) {
	if _, err := NewProviderGateway(ProviderGatewayConfig{History: session.NewHistory(session.HistoryConfig{})}); err == nil {
		t.Error("nil provider accepted")
	}
	if _, err := NewProviderGateway(ProviderGatewayConfig{Provider: &llmmock.Provider{}}); err == nil {
		t.Error("nil history accepted")
	}
}

func TestNewProviderGateway_DerivesMaxTokens(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "ok"},
		ModelCapabilities: llm.ModelCapabilities{MaxOutputTokens: 8000},
	}
	g, _ := newGateway(t, p)

	if _, err := g.Generate(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.CompleteCalls[0].Req.MaxTokens; got != 2000 {
		t.Errorf("MaxTokens = %d, want 2000", got)
	}
}
