package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/events", 200, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/producers", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/events", 400, 0.005)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/events", 500, 0.001)
}

func TestRecordIngestMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordIngest(ctx, "combat", "accepted")
	metrics.RecordIngest(ctx, "combat", "duplicate")
	metrics.RecordIngest(ctx, "connectivity", "accepted")
	metrics.RecordIngest(ctx, "lifecycle", "error")
}

func TestRecordPipelineMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordPipelineDelivered(ctx, 0.042)
	metrics.RecordPipelineFailed(ctx)
	metrics.RecordPipelineDropped(ctx)
	metrics.RecordPipelineRequeued(ctx)
	metrics.RecordPipelineQueueDepth(ctx, 17)
	metrics.RecordPipelineOutage(ctx, true)
	metrics.RecordPipelineOutage(ctx, false)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/events", "/v1/events"},
		{"/v1/producers", "/v1/producers"},
		{"/v1/producers/srv-eu-4", "/v1/producers/{login}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
