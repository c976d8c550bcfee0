package config

// Diff describes what changed between two configs. Only fields that can be
// applied without restarting the process are tracked; everything else
// (daemon URL, provider wiring, session limits) requires a restart.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TimingChanged covers the click window, negotiation retry, and
	// completion poll knobs. New state machines pick these up on the next
	// session; running sessions keep their current timings.
	TimingChanged bool

	// StopWordChanged means the detector must be rebuilt.
	StopWordChanged bool

	// GreetingChanged applies on the next voice mode activation.
	GreetingChanged bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.TimingChanged && !d.StopWordChanged && !d.GreetingChanged
}

// diff compares old and new configs and returns what changed.
func diff(old, new *Config) Diff {
	d := Diff{}

	if old.App.LogLevel != new.App.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.App.LogLevel
	}

	if old.Voice.DoubleClickIntervalMs != new.Voice.DoubleClickIntervalMs ||
		old.Voice.PauseMaxAttempts != new.Voice.PauseMaxAttempts ||
		old.Voice.PauseRetryDelayMs != new.Voice.PauseRetryDelayMs ||
		old.Voice.CompletionPollIntervalMs != new.Voice.CompletionPollIntervalMs {
		d.TimingChanged = true
	}

	if old.Voice.StopWord != new.Voice.StopWord ||
		old.Voice.StopWordThreshold != new.Voice.StopWordThreshold {
		d.StopWordChanged = true
	}

	if greeting(old.Voice.Greeting) != greeting(new.Voice.Greeting) ||
		(old.Voice.Greeting == nil) != (new.Voice.Greeting == nil) {
		d.GreetingChanged = true
	}

	return d
}

func greeting(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
