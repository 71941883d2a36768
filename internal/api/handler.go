// Package api provides the HTTP API handlers and routing for the ingest service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"telemetry/internal/apperrors"
	"telemetry/internal/health"
	"telemetry/internal/ingest"
	"telemetry/internal/observability"
	"telemetry/pkg/envelope"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Required and optional producer headers.
const (
	HeaderServerLogin     = "X-Server-Login"
	HeaderProducerVersion = "X-Producer-Version"
)

// Handler contains HTTP handlers for the ingestion API
type Handler struct {
	svc     *ingest.Service
	metrics *observability.Metrics
	health  *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc *ingest.Service, metrics *observability.Metrics, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:     svc,
		metrics: metrics,
		health:  healthChecker,
	}
}

// IngestEvent handles POST /v1/events. The body is either the wrapped form
// {"envelope": {...}, "transport": {...}} or a flat envelope. Batch-category
// envelopes fan out through the batch path; everything else is a single
// ingestion.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	login := r.Header.Get(HeaderServerLogin)
	if login == "" {
		h.writeIngestError(w, r, apperrors.Rejected(apperrors.CodeMissingServerLogin, "producer identity header required"))
		return
	}
	producerVersion := r.Header.Get(HeaderProducerVersion)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeIngestError(w, r, apperrors.Validation("body", apperrors.CodeInvalidEnvelope, "unreadable request body"))
		return
	}

	env, _, err := envelope.DecodeRequest(body)
	if err != nil {
		h.writeIngestError(w, r, apperrors.Validation("envelope", apperrors.CodeInvalidEnvelope, err.Error()))
		return
	}

	if env.EventCategory == envelope.CategoryBatch {
		result, err := h.svc.IngestBatch(r.Context(), login, producerVersion, env)
		if err != nil {
			h.writeIngestError(w, r, err)
			return
		}
		resp := envelope.AcceptedResponse()
		resp.Batch = &result
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := h.svc.Ingest(r.Context(), login, producerVersion, env)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	if res.Duplicate {
		h.writeJSON(w, http.StatusOK, envelope.DuplicateResponse())
		return
	}
	h.writeJSON(w, http.StatusOK, envelope.AcceptedResponse())
}

// ListProducers handles GET /v1/producers
func (h *Handler) ListProducers(w http.ResponseWriter, r *http.Request) {
	producers, err := h.svc.Producers(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if producers == nil {
		producers = []ingest.Producer{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"producers": producers})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the event store is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeIngestError shapes an error into the wire protocol: validation and
// rejection failures become a rejected ack with retryable=false, everything
// else becomes a structured error object the producer backs off on.
func (h *Handler) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.As(err)
	status := apperrors.HTTPStatus(appErr)

	if status >= 500 {
		slog.Error("Ingestion failed", "error", appErr.Message, "path", r.URL.Path)
	} else {
		slog.Warn("Envelope rejected", "code", appErr.Code, "error", appErr.Message, "path", r.URL.Path)
	}

	if errors.Is(appErr, apperrors.ErrValidation) || errors.Is(appErr, apperrors.ErrRejected) {
		retryable := false
		h.writeJSON(w, status, &envelope.Response{Ack: &envelope.Ack{
			Status:    envelope.StatusRejected,
			Code:      appErr.Code,
			Retryable: &retryable,
		}})
		return
	}

	retryable := appErr.Retryable
	h.writeJSON(w, status, &envelope.Response{Error: &envelope.WireError{
		Code:              appErr.Code,
		Message:           appErr.Message,
		Retryable:         &retryable,
		RetryAfterSeconds: appErr.RetryAfterSeconds,
	}})
}

// handleError handles errors from non-ingestion endpoints with plain error
// bodies and appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
