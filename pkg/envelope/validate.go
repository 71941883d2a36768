package envelope

import (
	"fmt"
	"strings"
)

// Validation limits
const (
	maxEventNameLen  = 256
	maxEventIDLen    = 128
	maxIdemKeyLen    = 128
	maxCallbackLen   = 128
	maxPayloadFields = 256
)

// Validate checks that an envelope satisfies the wire schema. It does not
// inspect category-specific payload contents; the payload is opaque.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope is required")
	}
	name := strings.TrimSpace(e.EventName)
	if name == "" {
		return fmt.Errorf("event_name is required")
	}
	if len(name) > maxEventNameLen {
		return fmt.Errorf("event_name exceeds maximum length of %d", maxEventNameLen)
	}
	if !strings.Contains(name, ".") {
		return fmt.Errorf("event_name must be a dotted category.kind string, got %q", name)
	}
	if e.SchemaVersion == "" {
		return fmt.Errorf("schema_version is required")
	}
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("event_id is required")
	}
	if len(e.EventID) > maxEventIDLen {
		return fmt.Errorf("event_id exceeds maximum length of %d", maxEventIDLen)
	}
	if !e.EventCategory.Valid() {
		return fmt.Errorf("unknown event_category %q", e.EventCategory)
	}
	if len(e.SourceCallback) > maxCallbackLen {
		return fmt.Errorf("source_callback exceeds maximum length of %d", maxCallbackLen)
	}
	if e.SourceSequence < 0 {
		return fmt.Errorf("source_sequence must not be negative")
	}
	if e.SourceTime.IsZero() {
		return fmt.Errorf("source_time is required")
	}
	key := strings.TrimSpace(e.IdempotencyKey)
	if key == "" {
		return fmt.Errorf("idempotency_key is required")
	}
	if len(key) > maxIdemKeyLen {
		return fmt.Errorf("idempotency_key exceeds maximum length of %d", maxIdemKeyLen)
	}
	if len(e.Payload) > maxPayloadFields {
		return fmt.Errorf("payload exceeds maximum of %d fields", maxPayloadFields)
	}
	return nil
}
