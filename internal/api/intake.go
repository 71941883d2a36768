package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"telemetry/internal/observability"
	"telemetry/internal/pipeline"
	"telemetry/pkg/envelope"
)

// IntakeRequest is the local submission format accepted from the game
// process. The agent assigns identity, sequence, and idempotency key.
type IntakeRequest struct {
	EventName      string            `json:"event_name"`
	EventCategory  envelope.Category `json:"event_category"`
	SourceCallback string            `json:"source_callback,omitempty"`
	Payload        map[string]any    `json:"payload,omitempty"`
}

// Intake is the relay agent's local HTTP surface: event submission from the
// game process, pipeline stats, and liveness.
type Intake struct {
	builder  *envelope.Builder
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// NewIntakeRouter wires the intake endpoints.
func NewIntakeRouter(builder *envelope.Builder, p *pipeline.Pipeline, metrics *observability.Metrics) http.Handler {
	intake := &Intake{
		builder:  builder,
		pipeline: p,
		logger:   slog.With("component", "intake"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/intake", intake.Submit)
	mux.HandleFunc("GET /v1/stats", intake.Stats)
	mux.HandleFunc("GET /livez", intake.Livez)

	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	if metrics != nil {
		h = MetricsMiddleware(metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)
	return h
}

// Submit handles POST /v1/intake. Submission never fails on delivery
// problems; a full queue drops the event and still returns accepted, which
// mirrors the fire-and-forget produce contract.
func (i *Intake) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePlainError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EventName == "" {
		writePlainError(w, http.StatusBadRequest, "event_name is required")
		return
	}
	if !req.EventCategory.Valid() || req.EventCategory == envelope.CategoryBatch {
		writePlainError(w, http.StatusBadRequest, "unknown event_category")
		return
	}

	env := i.builder.Build(req.EventName, req.EventCategory, req.SourceCallback, req.Payload)
	i.pipeline.Produce(env)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"queued":   true,
		"event_id": env.EventID,
		"sequence": env.SourceSequence,
	}); err != nil {
		i.logger.Error("Failed to encode response", "error", err)
	}
}

// Stats handles GET /v1/stats with a snapshot of pipeline state.
func (i *Intake) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(i.pipeline.Stats()); err != nil {
		i.logger.Error("Failed to encode response", "error", err)
	}
}

// Livez handles GET /livez for the agent process.
func (i *Intake) Livez(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func writePlainError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
