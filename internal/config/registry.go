package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/talvox/talvox/pkg/provider/llm"
	"github.com/talvox/talvox/pkg/provider/llm/anyllm"
	"github.com/talvox/talvox/pkg/provider/llm/openai"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// knownProviders lists the provider names [DefaultRegistry] registers.
// [Validate] uses it to reject unrecognised names before construction.
var knownProviders = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// KnownProvider reports whether name is registered by [DefaultRegistry].
func KnownProvider(name string) bool {
	for _, n := range knownProviders {
		if n == name {
			return true
		}
	}
	return false
}

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// Register adds or replaces the factory for the given provider name.
func (r *Registry) Register(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the provider described by entry.
func (r *Registry) Create(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// DefaultRegistry returns a registry with all built-in providers
// registered. OpenAI uses the native SDK client; the remaining providers go
// through the any-llm bridge.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("openai", func(entry ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	bridged := map[string]string{
		"anthropic": "anthropic",
		"gemini":    "gemini",
		"ollama":    "ollama",
		"deepseek":  "deepseek",
		"mistral":   "mistral",
		"groq":      "groq",
		"llamacpp":  "llamacpp",
		"llamafile": "llamafile",
	}
	for name, backend := range bridged {
		backend := backend
		r.Register(name, func(entry ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	return r
}
