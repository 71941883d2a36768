package api

import (
	"net/http"

	"telemetry/internal/health"
	"telemetry/internal/ingest"
	"telemetry/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Ingest        *ingest.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	Auth          AuthConfig
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Ingest, cfg.Metrics, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Producer-facing endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.Auth)
	mux.Handle("POST /v1/events", authMiddleware(http.HandlerFunc(handler.IngestEvent)))
	mux.Handle("GET /v1/producers", authMiddleware(http.HandlerFunc(handler.ListProducers)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
