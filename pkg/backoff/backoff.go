// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff.
type Config struct {
	Initial time.Duration // base delay; zero means immediate retry
	Max     time.Duration // cap; default: 30s
}

// DefaultConfig returns the delivery pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Initial: 1 * time.Second,
		Max:     30 * time.Second,
	}
}

// Exponential calculates the delay before the given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc. The result is
// floored at initial and capped at max. An initial of zero always yields
// zero, which callers use for immediate-retry/testing modes.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 1 * time.Second
	maxBackoff := 30 * time.Second
	if cfg != nil {
		initial = cfg.Initial
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if initial <= 0 {
		return 0
	}
	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}
	return time.Duration(delay)
}
