package envelope

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Builder constructs envelopes for a single producer process. Each envelope
// gets a fresh event ID and idempotency key and the next value of a
// process-wide monotonic sequence. The sequence is never reused; it resets
// only when the process restarts.
type Builder struct {
	source   string
	version  string
	snapshot func() map[string]any
	clock    func() time.Time

	seq atomic.Int64
}

// NewBuilder creates a Builder. source tags the origin of every envelope and
// version is the producer's plugin/runtime version. snapshot, when non-nil,
// is called per envelope to capture pipeline telemetry into the metadata.
func NewBuilder(source, version string, snapshot func() map[string]any) *Builder {
	return &Builder{
		source:   source,
		version:  version,
		snapshot: snapshot,
		clock:    time.Now,
	}
}

// Build creates a new immutable envelope for one event occurrence.
func (b *Builder) Build(name string, category Category, callback string, payload map[string]any) *Envelope {
	meta := map[string]any{
		"producer_version": b.version,
		"source":           b.source,
	}
	if b.snapshot != nil {
		for k, v := range b.snapshot() {
			meta[k] = v
		}
	}

	return &Envelope{
		EventName:      name,
		SchemaVersion:  SchemaVersion,
		EventID:        uuid.NewString(),
		EventCategory:  category,
		SourceCallback: callback,
		SourceSequence: b.seq.Add(1),
		SourceTime:     b.clock().UTC(),
		IdempotencyKey: uuid.NewString(),
		Payload:        payload,
		Metadata:       meta,
	}
}

// BuildHeartbeat creates a connectivity heartbeat envelope. declared carries
// the producer's announced capability fields (name, mode, title); absent
// fields leave the receiver's existing registration state untouched.
func (b *Builder) BuildHeartbeat(declared map[string]any) *Envelope {
	payload := map[string]any{
		"producer_version": b.version,
	}
	for k, v := range declared {
		payload[k] = v
	}
	return b.Build("connectivity.heartbeat", CategoryConnectivity, "heartbeat", payload)
}

// Sequence returns the last assigned sequence number.
func (b *Builder) Sequence() int64 {
	return b.seq.Load()
}
