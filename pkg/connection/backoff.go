package connection

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Default reconnection delays.
const (
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitter       = 0.2
)

// BackoffConfig configures a Backoff. Zero fields take the defaults,
// except Jitter where zero disables jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoffConfig returns the default delays.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    DefaultInitialDelay,
		Max:        DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
		Jitter:     DefaultJitter,
	}
}

// Backoff produces growing reconnection delays. Safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	current  time.Duration
	attempts int
}

// NewBackoff creates a backoff starting at cfg.Initial.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitialDelay
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = max(DefaultMaxDelay, cfg.Initial)
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	cfg.Jitter = max(cfg.Jitter, 0)
	return &Backoff{cfg: cfg, current: cfg.Initial}
}

// Next returns the delay before the next attempt and grows the base.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.cfg.Jitter > 0 {
		delay += time.Duration(float64(b.current) * b.cfg.Jitter * rand.Float64())
	}

	b.attempts++
	b.current = min(time.Duration(float64(b.current)*b.cfg.Multiplier), b.cfg.Max)
	return delay
}

// Wait sleeps for the next delay. It returns ctx.Err() if ctx is done
// first.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset returns to the initial delay. Call it after connecting.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base of the next delay, without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
