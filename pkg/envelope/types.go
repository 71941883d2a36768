// Package envelope provides the wire types for game-session telemetry events.
package envelope

import "time"

// SchemaVersion is the current envelope schema version.
const SchemaVersion = "v1"

// Category classifies an event envelope. The set is closed; anything else
// fails validation.
type Category string

const (
	CategoryLifecycle    Category = "lifecycle"
	CategoryPlayer       Category = "player"
	CategoryCombat       Category = "combat"
	CategoryMode         Category = "mode"
	CategoryConnectivity Category = "connectivity"
	CategoryBatch        Category = "batch"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLifecycle, CategoryPlayer, CategoryCombat, CategoryMode,
		CategoryConnectivity, CategoryBatch:
		return true
	}
	return false
}

// Envelope is the unit of transport for one logical event occurrence.
// Envelopes are immutable after creation; retries reference the same value.
type Envelope struct {
	EventName      string         `json:"event_name"`
	SchemaVersion  string         `json:"schema_version"`
	EventID        string         `json:"event_id"`
	EventCategory  Category       `json:"event_category"`
	SourceCallback string         `json:"source_callback,omitempty"`
	SourceSequence int64          `json:"source_sequence"`
	SourceTime     time.Time      `json:"source_time"`
	IdempotencyKey string         `json:"idempotency_key"`
	Payload        map[string]any `json:"payload,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// TransportMeta carries per-attempt delivery bookkeeping alongside the
// envelope so the receiver can observe producer retry behavior.
type TransportMeta struct {
	Attempt        int    `json:"attempt"`
	MaxAttempts    int    `json:"max_attempts"`
	RetryBackoffMS int64  `json:"retry_backoff_ms"`
	AuthMode       string `json:"auth_mode"`
}

// Request is the wrapped wire form: {"envelope": {...}, "transport": {...}}.
// Receivers also accept a flat envelope-only body; the presence of the
// "envelope" key is the discriminator.
type Request struct {
	Envelope  *Envelope      `json:"envelope"`
	Transport *TransportMeta `json:"transport,omitempty"`
}

// Ack statuses understood on the wire. Anything else (or a missing status)
// on an otherwise well-formed response is treated as implicit success.
const (
	StatusAccepted = "accepted"
	StatusOK       = "ok"
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
	StatusFailed   = "failed"

	DispositionDuplicate = "duplicate"
)

// Ack is the receiver's acknowledgment of an ingestion attempt.
type Ack struct {
	Status      string `json:"status"`
	Disposition string `json:"disposition,omitempty"`
	Code        string `json:"code,omitempty"`
	Retryable   *bool  `json:"retryable,omitempty"`
}

// WireError is the structured error object returned by the receiver.
type WireError struct {
	Code              string `json:"code"`
	Message           string `json:"message,omitempty"`
	Retryable         *bool  `json:"retryable,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	RetryAfterMS      int64  `json:"retry_after_ms,omitempty"`
}

// BatchResult aggregates per-item outcomes of a batch ingestion.
type BatchResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	BatchSize  int `json:"batch_size"`
}

// Response is the receiver's reply body for a single ingestion call.
type Response struct {
	Ack    *Ack         `json:"ack,omitempty"`
	Error  *WireError   `json:"error,omitempty"`
	Batch  *BatchResult `json:"batch,omitempty"`
	Status string       `json:"status,omitempty"`
}

// AcceptedResponse builds a plain success response.
func AcceptedResponse() *Response {
	return &Response{Ack: &Ack{Status: StatusAccepted}}
}

// DuplicateResponse builds a success response for a re-delivered envelope.
func DuplicateResponse() *Response {
	return &Response{Ack: &Ack{Status: StatusAccepted, Disposition: DispositionDuplicate}}
}
