package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAllFailed is returned when every gateway in a [FallbackGateway]
// fails or has an open breaker.
var ErrAllFailed = errors.New("generate: all gateways failed")

// ErrBreakerOpen is returned internally when an entry's breaker rejects
// the call without attempting it.
var ErrBreakerOpen = errors.New("generate: breaker is open")

// BreakerConfig tunes the per-entry breaker of a [FallbackGateway].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the entry
	// is skipped. Default: 3.
	MaxFailures int

	// Cooldown is how long a tripped entry is skipped before it is
	// retried. Default: 30s.
	Cooldown time.Duration
}

// breaker is a minimal trip-and-cooldown breaker. One generation request
// is in flight at a time in the voice loop, so the half-open probe
// machinery of a full circuit breaker buys nothing here; after the
// cooldown the next call simply tries the entry again.
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	consecutive int
	trippedAt   time.Time
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutive < b.maxFailures {
		return true
	}
	return time.Since(b.trippedAt) >= b.cooldown
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.consecutive = 0
		return
	}
	b.consecutive++
	if b.consecutive >= b.maxFailures {
		b.trippedAt = time.Now()
	}
}

// fallbackEntry pairs a gateway with its dedicated breaker.
type fallbackEntry struct {
	name    string
	gateway Gateway
	breaker *breaker
}

// FallbackGateway wraps a primary and zero or more fallback gateways.
// When the primary fails (or its breaker is tripped), the next healthy
// fallback is tried in registration order.
//
// FallbackGateway is safe for concurrent use.
type FallbackGateway struct {
	entries []fallbackEntry
	cfg     BreakerConfig
}

// NewFallbackGateway creates a [FallbackGateway] with primary as the
// first entry. Additional fallbacks are registered via
// [FallbackGateway.AddFallback]. Zero-value config fields are replaced
// with defaults.
func NewFallbackGateway(primary Gateway, primaryName string, cfg BreakerConfig) *FallbackGateway {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	fg := &FallbackGateway{cfg: cfg}
	fg.entries = append(fg.entries, fallbackEntry{
		name:    primaryName,
		gateway: primary,
		breaker: &breaker{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown},
	})
	return fg
}

// AddFallback appends a fallback gateway. Fallbacks are tried in the
// order they are added, after the primary.
func (fg *FallbackGateway) AddFallback(name string, gw Gateway) {
	fg.entries = append(fg.entries, fallbackEntry{
		name:    name,
		gateway: gw,
		breaker: &breaker{maxFailures: fg.cfg.MaxFailures, cooldown: fg.cfg.Cooldown},
	})
}

// Generate implements [Gateway]. It tries each entry in order until one
// succeeds; tripped entries are skipped. Returns [ErrAllFailed] wrapped
// with the last error if every entry fails.
func (fg *FallbackGateway) Generate(ctx context.Context, text string) (string, error) {
	var lastErr error = ErrBreakerOpen
	for i := range fg.entries {
		entry := &fg.entries[i]
		if !entry.breaker.allow() {
			slog.Debug("generate: skipping gateway (breaker tripped)", "gateway", entry.name)
			continue
		}
		reply, err := entry.gateway.Generate(ctx, text)
		entry.breaker.record(err)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		slog.Warn("generate: gateway failed, trying next", "gateway", entry.name, "error", err)
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
