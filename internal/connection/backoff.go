package connection

import (
	"math"
	"time"
)

// Backoff computes reconnect delays. It holds no state; the manager owns the
// attempt counter.
type Backoff struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxAttempts int           // 0 = unlimited
	MaxDelay    time.Duration // 0 = uncapped
}

// NewBackoff builds a policy from manager config.
func NewBackoff(cfg ManagerConfig) Backoff {
	return Backoff{
		BaseDelay:   cfg.BaseDelay,
		Multiplier:  cfg.Multiplier,
		MaxAttempts: cfg.MaxAttempts,
		MaxDelay:    cfg.MaxDelay,
	}
}

// Delay returns BaseDelay * Multiplier^attempt, capped at MaxDelay.
// attempt is zero-based: the delay before the first retry is Delay(0).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 1
	}

	d := float64(b.BaseDelay) * math.Pow(mult, float64(attempt))
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether failures consecutive recoverable failures use up
// the retry budget.
func (b Backoff) Exhausted(failures int) bool {
	return b.MaxAttempts > 0 && failures >= b.MaxAttempts
}
