// Package ingest implements the receiver-side ingestion protocol: idempotent
// dedup, transactional persistence, and producer auto-registration.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"telemetry/internal/apperrors"
	"telemetry/pkg/envelope"
)

// Store persists events and producer state.
type Store interface {
	// IngestEvent persists the event and applies the producer update as a
	// single atomic unit. Returns ErrDuplicateEvent when the idempotency
	// key is already stored, in which case nothing is written.
	IngestEvent(ctx context.Context, rec EventRecord, upd ProducerUpdate) error

	ListProducers(ctx context.Context) ([]Producer, error)
}

// MetricsRecorder is an optional interface for recording ingest metrics.
type MetricsRecorder interface {
	RecordIngest(ctx context.Context, category, outcome string)
}

// Result is the outcome of a single successful ingestion.
type Result struct {
	Duplicate bool
}

// Service applies the ingestion protocol on top of a Store.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics MetricsRecorder

	onlineThreshold time.Duration
	clock           func() time.Time
}

// NewService creates an ingestion service. metrics may be nil.
func NewService(store Store, onlineThreshold time.Duration, metrics MetricsRecorder) *Service {
	if onlineThreshold <= 0 {
		onlineThreshold = 2 * time.Minute
	}
	return &Service{
		store:           store,
		logger:          slog.With("component", "ingest"),
		metrics:         metrics,
		onlineThreshold: onlineThreshold,
		clock:           time.Now,
	}
}

// Ingest processes one envelope from the identified producer. Duplicate
// envelopes (same idempotency key) are acknowledged without any writes, so
// at-least-once delivery upstream becomes exactly-once processing here.
// Unknown producers are auto-registered unlinked rather than rejected.
func (s *Service) Ingest(ctx context.Context, login, producerVersion string, env *envelope.Envelope) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during ingestion", "panic", fmt.Sprint(r), "login", login)
			err = apperrors.Internal("ingest", fmt.Errorf("panic: %v", r))
		}
	}()

	if login == "" {
		return Result{}, apperrors.Rejected(apperrors.CodeMissingServerLogin, "producer identity required")
	}
	if err := env.Validate(); err != nil {
		return Result{}, apperrors.Validation("envelope", apperrors.CodeInvalidEnvelope, err.Error())
	}

	rec, upd, err := s.buildRecord(login, producerVersion, env)
	if err != nil {
		return Result{}, apperrors.Internal("ingest", err)
	}

	if err := s.store.IngestEvent(ctx, rec, upd); err != nil {
		if err == ErrDuplicateEvent {
			s.record(ctx, env.EventCategory, "duplicate")
			s.logger.Debug("Duplicate envelope acknowledged",
				"login", login,
				"event", env.EventName,
				"idempotency_key", env.IdempotencyKey,
			)
			return Result{Duplicate: true}, nil
		}
		s.record(ctx, env.EventCategory, "error")
		return Result{}, apperrors.Internal("ingest", err)
	}

	s.record(ctx, env.EventCategory, "accepted")
	return Result{}, nil
}

// IngestBatch fans every inner envelope of a batch through the single-event
// path. One bad inner envelope never aborts the rest.
func (s *Service) IngestBatch(ctx context.Context, login, producerVersion string, batch *envelope.Envelope) (envelope.BatchResult, error) {
	if login == "" {
		return envelope.BatchResult{}, apperrors.Rejected(apperrors.CodeMissingServerLogin, "producer identity required")
	}

	inner, decodeErrs := envelope.InnerEnvelopes(batch)

	result := envelope.BatchResult{
		BatchSize: len(inner) + len(decodeErrs),
		Rejected:  len(decodeErrs),
	}
	for _, env := range inner {
		res, err := s.Ingest(ctx, login, producerVersion, env)
		switch {
		case err != nil:
			result.Rejected++
		case res.Duplicate:
			result.Duplicates++
		default:
			result.Accepted++
		}
	}

	if result.Rejected > 0 {
		s.logger.Warn("Batch ingested with rejections",
			"login", login,
			"batch_size", result.BatchSize,
			"rejected", result.Rejected,
		)
	}
	return result, nil
}

// Producers lists registered producers with the online flag computed from
// the last-seen timestamp.
func (s *Service) Producers(ctx context.Context) ([]Producer, error) {
	producers, err := s.store.ListProducers(ctx)
	if err != nil {
		return nil, apperrors.Internal("list producers", err)
	}
	cutoff := s.clock().Add(-s.onlineThreshold)
	for i := range producers {
		producers[i].Online = producers[i].LastSeenAt.After(cutoff)
	}
	return producers, nil
}

// buildRecord converts an envelope into its persisted form plus the producer
// fields it implies. Only registration-category envelopes carry declared
// name/mode/title in the payload; absent fields stay empty and leave stored
// state untouched.
func (s *Service) buildRecord(login, producerVersion string, env *envelope.Envelope) (EventRecord, ProducerUpdate, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRecord{}, ProducerUpdate{}, fmt.Errorf("marshal payload: %w", err)
	}
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return EventRecord{}, ProducerUpdate{}, fmt.Errorf("marshal metadata: %w", err)
	}

	rec := EventRecord{
		EventID:        env.EventID,
		IdempotencyKey: env.IdempotencyKey,
		EventName:      env.EventName,
		EventCategory:  string(env.EventCategory),
		SchemaVersion:  env.SchemaVersion,
		ProducerLogin:  login,
		SourceCallback: env.SourceCallback,
		SourceSequence: env.SourceSequence,
		SourceTime:     env.SourceTime,
		Payload:        payload,
		Metadata:       metadata,
		ReceivedAt:     s.clock().UTC(),
	}

	upd := ProducerUpdate{ProducerVersion: producerVersion}
	if env.EventCategory == envelope.CategoryConnectivity {
		upd.Name = stringField(env.Payload, "name")
		upd.GameMode = stringField(env.Payload, "game_mode")
		upd.MapTitle = stringField(env.Payload, "map_title")
	}
	return rec, upd, nil
}

func (s *Service) record(ctx context.Context, category envelope.Category, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordIngest(ctx, string(category), outcome)
	}
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	v, _ := payload[key].(string)
	return v
}
