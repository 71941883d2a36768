package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"telemetry/internal/apperrors"
	"telemetry/pkg/envelope"
)

type fakeStore struct {
	events    map[string]EventRecord // by idempotency key
	updates   []ProducerUpdate
	producers []Producer
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[string]EventRecord{}}
}

func (f *fakeStore) IngestEvent(ctx context.Context, rec EventRecord, upd ProducerUpdate) error {
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.events[rec.IdempotencyKey]; ok {
		return ErrDuplicateEvent
	}
	f.events[rec.IdempotencyKey] = rec
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeStore) ListProducers(ctx context.Context) ([]Producer, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.producers, nil
}

func testEnvelope() *envelope.Envelope {
	b := envelope.NewBuilder("srv-1", "1.0.0", nil)
	return b.Build("combat.kill", envelope.CategoryCombat, "OnPlayerKilled", map[string]any{"weapon": "rifle"})
}

func TestIngest_PersistsNewEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, 0, nil)

	env := testEnvelope()
	res, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Duplicate {
		t.Error("first ingestion must not be a duplicate")
	}

	rec, ok := store.events[env.IdempotencyKey]
	if !ok {
		t.Fatal("expected event persisted")
	}
	if rec.ProducerLogin != "srv-1" || rec.EventName != "combat.kill" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.ReceivedAt.IsZero() {
		t.Error("expected received_at to be stamped")
	}
}

func TestIngest_DuplicateShortCircuits(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, 0, nil)
	env := testEnvelope()

	if _, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", env); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// Same idempotency key with a different payload: first-seen wins.
	env.Payload = map[string]any{"weapon": "pistol"}
	res, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", env)
	if err != nil {
		t.Fatalf("duplicate ingest must succeed: %v", err)
	}
	if !res.Duplicate {
		t.Error("expected duplicate disposition")
	}
	if len(store.updates) != 1 {
		t.Errorf("duplicate must not write, got %d updates", len(store.updates))
	}
}

func TestIngest_MissingLogin(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), 0, nil)
	_, err := svc.Ingest(context.Background(), "", "1.0.0", testEnvelope())

	appErr := apperrors.As(err)
	if !errors.Is(appErr, apperrors.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if appErr.Code != apperrors.CodeMissingServerLogin {
		t.Errorf("unexpected code %q", appErr.Code)
	}
}

func TestIngest_InvalidEnvelope(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), 0, nil)
	env := testEnvelope()
	env.EventName = "noseparator"

	_, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", env)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngest_StoreFailureIsRetryable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failWith = errors.New("disk full")
	svc := NewService(store, 0, nil)

	_, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", testEnvelope())
	appErr := apperrors.As(err)
	if !errors.Is(appErr, apperrors.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if !appErr.Retryable || appErr.RetryAfterSeconds != 5 {
		t.Errorf("internal errors must be retryable with a 5s hint, got %+v", appErr)
	}
}

func TestIngest_HeartbeatUpdatesProducerFields(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, 0, nil)

	b := envelope.NewBuilder("srv-1", "2.3.0", nil)
	hb := b.BuildHeartbeat(map[string]any{
		"name":      "EU #4",
		"game_mode": "conquest",
	})

	if _, err := svc.Ingest(context.Background(), "srv-1", "2.3.0", hb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	upd := store.updates[0]
	if upd.Name != "EU #4" || upd.GameMode != "conquest" {
		t.Errorf("unexpected update %+v", upd)
	}
	// Absent fields must stay empty so stored state is merged, not replaced.
	if upd.MapTitle != "" {
		t.Errorf("expected empty map title, got %q", upd.MapTitle)
	}
	if upd.ProducerVersion != "2.3.0" {
		t.Errorf("expected producer version carried, got %q", upd.ProducerVersion)
	}
}

func TestIngest_GameplayEventDoesNotTouchDeclaredFields(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, 0, nil)

	env := testEnvelope()
	env.Payload["name"] = "not a server name"
	if _, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd := store.updates[0]; upd.Name != "" {
		t.Errorf("non-connectivity payload must not update producer name, got %q", upd.Name)
	}
}

func batchEnvelope(inner ...*envelope.Envelope) *envelope.Envelope {
	events := make([]any, len(inner))
	for i, env := range inner {
		events[i] = env
	}
	b := envelope.NewBuilder("srv-1", "1.0.0", nil)
	return b.Build("batch.upload", envelope.CategoryBatch, "OnBatch", map[string]any{"events": events})
}

func TestIngestBatch_Accounting(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, 0, nil)

	good := testEnvelope()
	dup := testEnvelope()
	bad := testEnvelope()
	bad.IdempotencyKey = ""

	if _, err := svc.Ingest(context.Background(), "srv-1", "1.0.0", dup); err != nil {
		t.Fatalf("seed ingest failed: %v", err)
	}

	result, err := svc.IngestBatch(context.Background(), "srv-1", "1.0.0", batchEnvelope(good, dup, bad))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := envelope.BatchResult{Accepted: 1, Duplicates: 1, Rejected: 1, BatchSize: 3}
	if result != want {
		t.Errorf("got %+v, want %+v", result, want)
	}
}

func TestIngestBatch_EmptyPayload(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), 0, nil)
	result, err := svc.IngestBatch(context.Background(), "srv-1", "1.0.0", batchEnvelope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != (envelope.BatchResult{}) {
		t.Errorf("expected all-zero counts, got %+v", result)
	}
}

func TestProducers_OnlineFlag(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.producers = []Producer{
		{Login: "srv-fresh", LastSeenAt: now.Add(-30 * time.Second)},
		{Login: "srv-stale", LastSeenAt: now.Add(-10 * time.Minute)},
	}
	svc := NewService(store, 2*time.Minute, nil)
	svc.clock = func() time.Time { return now }

	producers, err := svc.Producers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !producers[0].Online {
		t.Error("recently seen producer should be online")
	}
	if producers[1].Online {
		t.Error("stale producer should be offline")
	}
}
