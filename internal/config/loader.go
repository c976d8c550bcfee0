package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns a configuration populated with the built-in defaults.
// Loading merges the file's contents over this baseline.
func Default() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:      LogInfo,
			TraceExporter: TraceNone,
		},
		Speech: SpeechConfig{
			DaemonURL:        "ws://127.0.0.1:8787/control",
			CommandTimeoutMs: 2000,
		},
		Voice: VoiceConfig{
			DoubleClickIntervalMs:    300,
			PauseMaxAttempts:         5,
			PauseRetryDelayMs:        100,
			CompletionPollIntervalMs: 100,
			StopWord:                 "stop",
			StopWordThreshold:        0.88,
		},
		LLM: LLMConfig{
			Breaker: BreakerConfig{
				MaxFailures:     3,
				CooldownSeconds: 30,
			},
		},
		Session: SessionConfig{
			MaxMessages: 50,
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes, defaults, and validates a YAML configuration.
// Unknown fields are rejected so typos surface immediately.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file, defaults apply.
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for hard errors and logs warnings for
// soft issues. All hard errors are collected and returned joined.
func (c *Config) Validate() error {
	var errs []error

	if !c.App.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: app.log_level %q is not one of debug, info, warn, error", c.App.LogLevel))
	}
	if !c.App.TraceExporter.IsValid() {
		errs = append(errs, fmt.Errorf("config: app.trace_exporter %q is not one of none, stdout", c.App.TraceExporter))
	}

	if c.Speech.DaemonURL == "" {
		errs = append(errs, errors.New("config: speech.daemon_url must be set"))
	}
	if c.Speech.CommandTimeoutMs <= 0 {
		errs = append(errs, errors.New("config: speech.command_timeout_ms must be positive"))
	}

	if c.Voice.DoubleClickIntervalMs <= 0 {
		errs = append(errs, errors.New("config: voice.double_click_interval_ms must be positive"))
	}
	if c.Voice.PauseMaxAttempts <= 0 {
		errs = append(errs, errors.New("config: voice.pause_max_attempts must be positive"))
	}
	if c.Voice.PauseRetryDelayMs <= 0 {
		errs = append(errs, errors.New("config: voice.pause_retry_delay_ms must be positive"))
	}
	if c.Voice.CompletionPollIntervalMs <= 0 {
		errs = append(errs, errors.New("config: voice.completion_poll_interval_ms must be positive"))
	}
	if c.Voice.StopWord == "" {
		errs = append(errs, errors.New("config: voice.stop_word must be set"))
	}
	if c.Voice.StopWordThreshold <= 0 || c.Voice.StopWordThreshold > 1 {
		errs = append(errs, fmt.Errorf("config: voice.stop_word_threshold %v must be in (0, 1]", c.Voice.StopWordThreshold))
	}

	if c.Voice.DoubleClickIntervalMs > 500 {
		slog.Warn("double click interval is unusually long; single clicks will feel sluggish",
			"double_click_interval_ms", c.Voice.DoubleClickIntervalMs)
	}
	if c.Voice.PauseMaxAttempts*c.Voice.PauseRetryDelayMs > 2000 {
		slog.Warn("pause negotiation may block a click for a noticeable time",
			"pause_max_attempts", c.Voice.PauseMaxAttempts,
			"pause_retry_delay_ms", c.Voice.PauseRetryDelayMs)
	}

	if err := c.LLM.Primary.validate("llm.primary"); err != nil {
		errs = append(errs, err)
	}
	for i, fb := range c.LLM.Fallbacks {
		if err := fb.validate(fmt.Sprintf("llm.fallbacks[%d]", i)); err != nil {
			errs = append(errs, err)
		}
	}
	if c.LLM.Breaker.MaxFailures <= 0 {
		errs = append(errs, errors.New("config: llm.breaker.max_failures must be positive"))
	}
	if c.LLM.Breaker.CooldownSeconds <= 0 {
		errs = append(errs, errors.New("config: llm.breaker.cooldown_seconds must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("config: llm.temperature %v must be in [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("config: llm.max_tokens must not be negative"))
	}
	if len(c.LLM.Fallbacks) == 0 {
		slog.Warn("no llm fallbacks configured; generation fails hard when the primary provider is down")
	}

	if c.Session.MaxMessages <= 0 {
		errs = append(errs, errors.New("config: session.max_messages must be positive"))
	}

	return errors.Join(errs...)
}

func (p ProviderEntry) validate(path string) error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, fmt.Errorf("config: %s.name must be set", path))
	} else if !KnownProvider(p.Name) {
		errs = append(errs, fmt.Errorf("config: %s.name %q is not a known provider", path, p.Name))
	}
	if p.Model == "" {
		errs = append(errs, fmt.Errorf("config: %s.model must be set", path))
	}
	return errors.Join(errs...)
}
