package ingest

import (
	"errors"
	"time"
)

// ErrDuplicateEvent is reported by stores when an event with the same
// idempotency key has already been persisted.
var ErrDuplicateEvent = errors.New("duplicate event")

// Producer is a registered event source, keyed by its server login.
// Producers are auto-registered on first contact and start unlinked until
// an operator claims them.
type Producer struct {
	Login           string    `json:"login"`
	Linked          bool      `json:"linked"`
	Name            string    `json:"name,omitempty"`
	GameMode        string    `json:"game_mode,omitempty"`
	MapTitle        string    `json:"map_title,omitempty"`
	ProducerVersion string    `json:"producer_version,omitempty"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	Online          bool      `json:"online"`
}

// EventRecord is the persisted form of an accepted envelope.
type EventRecord struct {
	EventID        string
	IdempotencyKey string
	EventName      string
	EventCategory  string
	SchemaVersion  string
	ProducerLogin  string
	SourceCallback string
	SourceSequence int64
	SourceTime     time.Time
	Payload        []byte
	Metadata       []byte
	ReceivedAt     time.Time
}

// ProducerUpdate carries the producer fields an envelope may refresh.
// Empty fields leave the stored value alone so a plain gameplay event
// never erases what a heartbeat reported.
type ProducerUpdate struct {
	Name            string
	GameMode        string
	MapTitle        string
	ProducerVersion string
}
