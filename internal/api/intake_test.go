package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"telemetry/internal/pipeline"
	"telemetry/internal/transport"
	"telemetry/pkg/envelope"
)

type stubSender struct{}

func (stubSender) Send(ctx context.Context, env *envelope.Envelope, attempt int) <-chan transport.Result {
	ch := make(chan transport.Result, 1)
	ch <- transport.Result{Delivered: true}
	return ch
}

func newIntakeRouter(t *testing.T) (http.Handler, *pipeline.Pipeline) {
	t.Helper()
	p := pipeline.New(pipeline.Config{}, stubSender{}, nil)
	b := envelope.NewBuilder("srv-1", "1.0.0", p.Snapshot)
	return NewIntakeRouter(b, p, nil), p
}

func postIntake(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/intake", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIntake_Submit(t *testing.T) {
	t.Parallel()
	router, p := newIntakeRouter(t)

	w := postIntake(router, `{"event_name":"player.connect","event_category":"player","source_callback":"OnPlayerConnected","payload":{"player":"alice"}}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}
	var body struct {
		Queued   bool   `json:"queued"`
		EventID  string `json:"event_id"`
		Sequence int64  `json:"sequence"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Queued || body.EventID == "" || body.Sequence != 1 {
		t.Errorf("Unexpected response %+v", body)
	}
	if stats := p.Stats(); stats.Telemetry.Produced != 1 {
		t.Errorf("Expected event produced, got %+v", stats.Telemetry)
	}
}

func TestIntake_SubmitValidation(t *testing.T) {
	t.Parallel()
	router, _ := newIntakeRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"event_category":"player"}`},
		{"unknown category", `{"event_name":"x.y","event_category":"nope"}`},
		{"batch category reserved", `{"event_name":"x.y","event_category":"batch"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postIntake(router, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestIntake_Stats(t *testing.T) {
	t.Parallel()
	router, _ := newIntakeRouter(t)

	postIntake(router, `{"event_name":"player.connect","event_category":"player"}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var stats pipeline.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Telemetry.Produced != 1 {
		t.Errorf("Expected produced counter in stats, got %+v", stats.Telemetry)
	}
}
