package pipeline

import (
	"time"

	"telemetry/internal/transport"
	"telemetry/pkg/backoff"
)

// Retry policy names recognized in configuration.
const (
	RetryExponential = "exponential"
	RetryNone        = "none"
)

// Policy decides whether and when a failed delivery is attempted again.
// Policies are stateless; all per-delivery state lives on the item.
type Policy interface {
	// ShouldRetry reports whether the item gets another attempt. A
	// non-retryable delivery error short-circuits regardless of the
	// remaining attempt budget.
	ShouldRetry(item *Item, derr *transport.DeliveryError) bool

	// Delay returns how long to wait before the item's next attempt.
	Delay(item *Item) time.Duration
}

// ExponentialPolicy retries transient failures with capped exponential
// backoff until the attempt budget is spent.
type ExponentialPolicy struct {
	MaxAttempts int
	Backoff     backoff.Config
}

// ShouldRetry allows a retry iff the error is absent or retryable and the
// attempt budget is not exhausted.
func (p ExponentialPolicy) ShouldRetry(item *Item, derr *transport.DeliveryError) bool {
	if derr != nil && !derr.Retryable {
		return false
	}
	return item.Attempt < p.MaxAttempts
}

// Delay computes the backoff before the next attempt. A receiver-provided
// retry hint takes precedence over the computed curve.
func (p ExponentialPolicy) Delay(item *Item) time.Duration {
	if item.LastErr != nil && item.LastErr.RetryAfterSeconds > 0 {
		return time.Duration(item.LastErr.RetryAfterSeconds) * time.Second
	}
	return backoff.Exponential(item.Attempt, &p.Backoff)
}

// NoRetryPolicy gives every delivery exactly one attempt.
type NoRetryPolicy struct{}

func (NoRetryPolicy) ShouldRetry(*Item, *transport.DeliveryError) bool { return false }
func (NoRetryPolicy) Delay(*Item) time.Duration                       { return 0 }

// NewPolicy builds the configured policy. Unrecognized names fall back to
// exponential backoff.
func NewPolicy(cfg Config) Policy {
	if cfg.RetryPolicy == RetryNone {
		return NoRetryPolicy{}
	}
	return ExponentialPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: backoff.Config{
			Initial: cfg.BaseDelay,
			Max:     cfg.MaxDelay,
		},
	}
}
