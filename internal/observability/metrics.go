package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/deliveries take
// - Traffic: Request/event throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (queue depth)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Ingest metrics (Traffic, Errors)
	IngestTotal metric.Int64Counter

	// Pipeline metrics (Latency, Traffic, Errors, Saturation)
	PipelineDuration   metric.Float64Histogram
	PipelineDelivered  metric.Int64Counter
	PipelineFailed     metric.Int64Counter
	PipelineDropped    metric.Int64Counter
	PipelineRequeued   metric.Int64Counter
	PipelineQueueDepth metric.Int64Gauge
	PipelineOutage     metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("telemetry")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Ingest metrics
	m.IngestTotal, err = meter.Int64Counter(
		"ingest_events_total",
		metric.WithDescription("Total ingested envelopes by category and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Pipeline metrics
	m.PipelineDuration, err = meter.Float64Histogram(
		"pipeline_delivery_duration_seconds",
		metric.WithDescription("Envelope delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PipelineDelivered, err = meter.Int64Counter(
		"pipeline_delivered_total",
		metric.WithDescription("Total envelopes successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PipelineFailed, err = meter.Int64Counter(
		"pipeline_failed_total",
		metric.WithDescription("Total envelopes abandoned after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PipelineDropped, err = meter.Int64Counter(
		"pipeline_dropped_total",
		metric.WithDescription("Total envelopes dropped at queue capacity"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PipelineRequeued, err = meter.Int64Counter(
		"pipeline_requeued_total",
		metric.WithDescription("Total envelopes requeued for another attempt"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PipelineQueueDepth, err = meter.Int64Gauge(
		"pipeline_queue_depth",
		metric.WithDescription("Current number of envelopes in the local queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PipelineOutage, err = meter.Int64Gauge(
		"pipeline_outage_active",
		metric.WithDescription("Whether a delivery outage is currently active (0 or 1)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordIngest records one ingested envelope by category and outcome
// (accepted, duplicate, error).
func (m *Metrics) RecordIngest(ctx context.Context, category, outcome string) {
	m.IngestTotal.Add(ctx, 1, metric.WithAttributes(categoryAttr(category), outcomeAttr(outcome)))
}

// RecordPipelineDelivered records a successful delivery with its duration.
func (m *Metrics) RecordPipelineDelivered(ctx context.Context, durationSeconds float64) {
	m.PipelineDelivered.Add(ctx, 1)
	m.PipelineDuration.Record(ctx, durationSeconds)
}

// RecordPipelineFailed records an envelope abandoned after retries.
func (m *Metrics) RecordPipelineFailed(ctx context.Context) {
	m.PipelineFailed.Add(ctx, 1)
}

// RecordPipelineDropped records an envelope dropped at capacity.
func (m *Metrics) RecordPipelineDropped(ctx context.Context) {
	m.PipelineDropped.Add(ctx, 1)
}

// RecordPipelineRequeued records an envelope requeued for retry.
func (m *Metrics) RecordPipelineRequeued(ctx context.Context) {
	m.PipelineRequeued.Add(ctx, 1)
}

// RecordPipelineQueueDepth records the current queue depth.
func (m *Metrics) RecordPipelineQueueDepth(ctx context.Context, depth int64) {
	m.PipelineQueueDepth.Record(ctx, depth)
}

// RecordPipelineOutage records outage state transitions.
func (m *Metrics) RecordPipelineOutage(ctx context.Context, active bool) {
	var v int64
	if active {
		v = 1
	}
	m.PipelineOutage.Record(ctx, v)
}
