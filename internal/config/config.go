// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Talvox voice assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TraceExporter selects where spans are shipped.
type TraceExporter string

const (
	// TraceNone disables span export entirely.
	TraceNone TraceExporter = "none"

	// TraceStdout prints spans to standard output, for local debugging.
	TraceStdout TraceExporter = "stdout"
)

// IsValid reports whether t is a recognised trace exporter.
func (t TraceExporter) IsValid() bool {
	switch t {
	case TraceNone, TraceStdout:
		return true
	}
	return false
}

// Config is the root configuration structure for Talvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	App     AppConfig     `yaml:"app"`
	Speech  SpeechConfig  `yaml:"speech"`
	Voice   VoiceConfig   `yaml:"voice"`
	LLM     LLMConfig     `yaml:"llm"`
	Session SessionConfig `yaml:"session"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	// LogLevel controls verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`

	// TraceExporter selects span export. Defaults to "none".
	TraceExporter TraceExporter `yaml:"trace_exporter"`

	// DiagAddr is the listen address of the local diagnostics endpoint
	// (/healthz, /readyz, /metrics). Empty disables it.
	DiagAddr string `yaml:"diag_addr"`
}

// SpeechConfig describes how to reach the voiced speech daemon.
type SpeechConfig struct {
	// DaemonURL is the daemon's WebSocket control endpoint
	// (e.g., "ws://127.0.0.1:8787/control").
	DaemonURL string `yaml:"daemon_url"`

	// CommandTimeoutMs bounds how long a speak/pause/resume command waits
	// for its ack. Defaults to 2000.
	CommandTimeoutMs int `yaml:"command_timeout_ms"`
}

// VoiceConfig holds the interaction-timing knobs of the voice controller.
// The defaults trade single-click responsiveness against false-positive
// double clicks and retry cheapness against pause latency; expose them
// rather than hard-coding.
type VoiceConfig struct {
	// DoubleClickIntervalMs is the click disambiguation window. Defaults
	// to 300.
	DoubleClickIntervalMs int `yaml:"double_click_interval_ms"`

	// PauseMaxAttempts bounds the pause/resume negotiation retry loop.
	// Defaults to 5.
	PauseMaxAttempts int `yaml:"pause_max_attempts"`

	// PauseRetryDelayMs is the gap between negotiation attempts. Defaults
	// to 100.
	PauseRetryDelayMs int `yaml:"pause_retry_delay_ms"`

	// CompletionPollIntervalMs is how often the completion watcher polls
	// the backend. Defaults to 100.
	CompletionPollIntervalMs int `yaml:"completion_poll_interval_ms"`

	// StopWord is the spoken keyword that exits hands-free mode. Defaults
	// to "stop".
	StopWord string `yaml:"stop_word"`

	// StopWordThreshold is the fuzzy-match similarity in (0, 1]. Defaults
	// to 0.88.
	StopWordThreshold float64 `yaml:"stop_word_threshold"`

	// Greeting is spoken when hands-free mode engages. An explicit empty
	// string disables it; unset selects the built-in greeting.
	Greeting *string `yaml:"greeting"`
}

// LLMConfig selects the generation providers.
type LLMConfig struct {
	// Primary is the provider used for every turn until it fails.
	Primary ProviderEntry `yaml:"primary"`

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the per-provider failure breaker.
	Breaker BreakerConfig `yaml:"breaker"`

	// SystemPrompt overrides the built-in voice-assistant instruction.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is passed through to the providers.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps reply length. Zero derives a cap from the model.
	MaxTokens int `yaml:"max_tokens"`
}

// ProviderEntry selects one registered LLM provider.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "anthropic", "ollama").
	Name string `yaml:"name"`

	// Model is the provider-specific model identifier (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// APIKey is the authentication key, if the provider needs one. Leave
	// empty to fall back to the provider's environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}

// BreakerConfig tunes the generation fallback breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before a provider
	// is skipped. Defaults to 3.
	MaxFailures int `yaml:"max_failures"`

	// CooldownSeconds is how long a tripped provider is skipped. Defaults
	// to 30.
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// SessionConfig tunes the per-window conversation history.
type SessionConfig struct {
	// MaxMessages caps how many history entries prompt building sees.
	// Defaults to 50.
	MaxMessages int `yaml:"max_messages"`
}

// CommandTimeout returns the speech command timeout as a duration.
func (s SpeechConfig) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutMs) * time.Millisecond
}

// DoubleClickInterval returns the disambiguation window as a duration.
func (v VoiceConfig) DoubleClickInterval() time.Duration {
	return time.Duration(v.DoubleClickIntervalMs) * time.Millisecond
}

// PauseRetryDelay returns the negotiation retry gap as a duration.
func (v VoiceConfig) PauseRetryDelay() time.Duration {
	return time.Duration(v.PauseRetryDelayMs) * time.Millisecond
}

// CompletionPollInterval returns the watcher poll interval as a duration.
func (v VoiceConfig) CompletionPollInterval() time.Duration {
	return time.Duration(v.CompletionPollIntervalMs) * time.Millisecond
}

// Cooldown returns the breaker cooldown as a duration.
func (b BreakerConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownSeconds) * time.Second
}
