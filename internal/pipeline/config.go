package pipeline

import (
	"time"
)

// Hardcoded pipeline defaults - these rarely need tuning.
const (
	defaultMaxQueueSize   = 1000
	defaultBatchSize      = 25
	defaultMaxAttempts    = 5
	defaultBaseDelay      = 1 * time.Second
	defaultMaxDelay       = 30 * time.Second
	defaultGrowthLogStep  = 100
	defaultOutageFailures = 3
)

// Config holds configuration for the dispatch pipeline.
type Config struct {
	MaxQueueSize    int           // pending deliveries kept before dropping new events
	BatchSize       int           // ready items drained per tick
	MaxAttempts     int           // delivery attempts per item
	BaseDelay       time.Duration // retry backoff base; zero means immediate retry
	MaxDelay        time.Duration // retry backoff cap
	RetryPolicy     string        // exponential|none
	GrowthLogStep   int           // queue-depth step that triggers a pressure log line
	OutageAfter     int           // consecutive failures before outage is declared
	TripOnPermanent bool          // one non-retryable failure declares an outage
	SendOnProduce   bool          // attempt an opportunistic send when producing
}

// withDefaults fills in zero values with defaults. BaseDelay is left alone:
// zero is a meaningful immediate-retry setting.
func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.RetryPolicy == "" {
		c.RetryPolicy = RetryExponential
	}
	if c.GrowthLogStep <= 0 {
		c.GrowthLogStep = defaultGrowthLogStep
	}
	if c.OutageAfter <= 0 {
		c.OutageAfter = defaultOutageFailures
	}
	return c
}
