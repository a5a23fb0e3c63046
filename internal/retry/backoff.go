package retry

import (
	"math"
	"math/rand"
	"time"
)

const minDelay = 100 * time.Millisecond

// Backoff handles fixed or exponential backoff calculations with jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64
}

// DefaultBackoff returns a standard backoff configuration.
func DefaultBackoff() *Backoff {
	return &Backoff{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		Factor:    2.0,
		Jitter:    0.1,
	}
}

// NewBackoff derives the backoff described by cfg. The fixed strategy is an
// exponential backoff with a factor of one.
func NewBackoff(cfg Config) *Backoff {
	b := &Backoff{
		BaseDelay: cfg.InitialBackoff,
		MaxDelay:  cfg.MaxBackoff,
		Factor:    cfg.BackoffMultiplier,
		Jitter:    cfg.JitterFactor,
	}
	if cfg.Strategy == StrategyFixed || b.Factor <= 0 {
		b.Factor = 1
	}
	if b.MaxDelay < b.BaseDelay {
		b.MaxDelay = b.BaseDelay
	}
	return b
}

// NextDelay calculates the delay to wait after the given zero-based attempt.
// A zero base delay disables waiting altogether.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if b.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.BaseDelay) * math.Pow(b.Factor, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	// Add jitter
	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
		delay += jitter
	}

	// Enforce 100ms minimum floor
	if delay < float64(minDelay) {
		delay = float64(minDelay)
	}

	return time.Duration(delay)
}
