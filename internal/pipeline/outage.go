package pipeline

import (
	"time"

	"telemetry/internal/transport"
)

// OutageTracker flips to active after a run of consecutive delivery failures
// (or a single permanent one, when configured) and back on the first
// subsequent success. It is not internally synchronized: the pipeline
// serializes all access.
type OutageTracker struct {
	threshold       int  // consecutive failures before an outage is declared
	tripOnPermanent bool // a single non-retryable failure declares an outage

	active    bool
	failures  int
	startedAt time.Time
	lastError string
	clock     func() time.Time
}

// OutageState is a point-in-time snapshot, exposed in outbound telemetry so
// the receiver can observe producer-side health even while deliveries fail.
type OutageState struct {
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
}

// NewOutageTracker creates a tracker declaring an outage after threshold
// consecutive failures.
func NewOutageTracker(threshold int, tripOnPermanent bool) *OutageTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &OutageTracker{
		threshold:       threshold,
		tripOnPermanent: tripOnPermanent,
		clock:           time.Now,
	}
}

// RecordFailure notes a failed delivery and reports whether this failure
// transitioned the tracker into an active outage.
func (o *OutageTracker) RecordFailure(derr *transport.DeliveryError) bool {
	o.failures++
	if derr != nil {
		o.lastError = derr.Error()
	}

	if o.active {
		return false
	}
	if o.failures >= o.threshold || (o.tripOnPermanent && derr != nil && !derr.Retryable) {
		o.active = true
		o.startedAt = o.clock()
		return true
	}
	return false
}

// RecordSuccess notes a successful delivery and reports whether it ended an
// active outage.
func (o *OutageTracker) RecordSuccess() bool {
	recovered := o.active
	o.active = false
	o.failures = 0
	o.startedAt = time.Time{}
	o.lastError = ""
	return recovered
}

// Snapshot returns the current outage state.
func (o *OutageTracker) Snapshot() OutageState {
	return OutageState{
		Active:    o.active,
		StartedAt: o.startedAt,
		Failures:  o.failures,
		LastError: o.lastError,
	}
}
