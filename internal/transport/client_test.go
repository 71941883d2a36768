package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telemetry/pkg/envelope"
)

func testEnvelope() *envelope.Envelope {
	b := envelope.NewBuilder("srv-1", "1.0.0", nil)
	return b.Build("player.join", envelope.CategoryPlayer, "OnPlayerConnected", map[string]any{"steam_id": "76561198000000000"})
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send result")
		return Result{}
	}
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	var gotReq envelope.Request
	var gotLogin, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLogin = r.Header.Get(HeaderServerLogin)
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(envelope.AcceptedResponse())
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:     srv.URL,
		Identity:    "srv-1",
		Version:     "1.0.0",
		AuthMode:    AuthBearer,
		AuthValue:   "tok123",
		MaxAttempts: 5,
	})

	res := waitResult(t, c.Send(context.Background(), testEnvelope(), 2))
	if !res.Delivered || res.Err != nil {
		t.Fatalf("expected delivery, got %+v", res)
	}
	if gotLogin != "srv-1" {
		t.Errorf("expected server login header, got %q", gotLogin)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotReq.Envelope == nil || gotReq.Envelope.EventName != "player.join" {
		t.Errorf("expected wrapped envelope, got %+v", gotReq.Envelope)
	}
	if gotReq.Transport == nil || gotReq.Transport.Attempt != 2 || gotReq.Transport.MaxAttempts != 5 {
		t.Errorf("expected transport metadata, got %+v", gotReq.Transport)
	}
}

func TestSend_APIKeyHeader(t *testing.T) {
	t.Parallel()

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Ingest-Key")
		json.NewEncoder(w).Encode(envelope.AcceptedResponse())
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:        srv.URL,
		AuthMode:       AuthAPIKey,
		AuthValue:      "secret",
		AuthHeaderName: "X-Ingest-Key",
		Identity:       "srv-1",
	})

	res := waitResult(t, c.Send(context.Background(), testEnvelope(), 1))
	if !res.Delivered {
		t.Fatalf("expected delivery, got %+v", res)
	}
	if gotKey != "secret" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
}

func TestSend_TransportError(t *testing.T) {
	t.Parallel()

	// Closed server yields a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(Config{BaseURL: srv.URL, Identity: "srv-1", Timeout: time.Second})
	res := waitResult(t, c.Send(context.Background(), testEnvelope(), 1))
	if res.Delivered {
		t.Fatal("expected failure")
	}
	if res.Err.Code != CodeTransportError || !res.Err.Retryable {
		t.Errorf("expected retryable transport_error, got %+v", res.Err)
	}
}

func TestSend_EncodingFailure(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://localhost:0", Identity: "srv-1"})
	env := testEnvelope()
	env.Payload = map[string]any{"bad": make(chan int)}

	res := waitResult(t, c.Send(context.Background(), env, 1))
	if res.Delivered {
		t.Fatal("expected failure")
	}
	if res.Err.Code != CodeEncodingFailed {
		t.Errorf("expected encoding_failed, got %q", res.Err.Code)
	}
	if res.Err.Retryable {
		t.Error("encoding failures must not be retryable")
	}
}

func TestSend_ResponseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		body          string
		wantDelivered bool
		wantCode      string
		wantRetryable bool
		wantAfter     int
	}{
		{"accepted ack", `{"ack":{"status":"accepted"}}`, true, "", false, 0},
		{"duplicate ack", `{"ack":{"status":"accepted","disposition":"duplicate"}}`, true, "", false, 0},
		{"flat ok status", `{"status":"ok"}`, true, "", false, 0},
		{"implicit success", `{"received":true}`, true, "", false, 0},
		{"empty body", ``, false, CodeEmptyResponse, true, 0},
		{"unparseable body", `<html>bad gateway</html>`, false, CodeInvalidAckPayload, false, 0},
		{"error object default", `{"error":{"code":"storage_unavailable","message":"db down"}}`, false, "storage_unavailable", false, 0},
		{"error object retryable", `{"error":{"code":"internal_error","retryable":true,"retry_after_seconds":5}}`, false, "internal_error", true, 5},
		{"error object ms hint", `{"error":{"code":"internal_error","retryable":true,"retry_after_ms":1500}}`, false, "internal_error", true, 2},
		{"error object no code", `{"error":{"message":"boom"}}`, false, CodeServerError, false, 0},
		{"rejected ack", `{"ack":{"status":"rejected","code":"missing_server_login","retryable":false}}`, false, CodeAckRejected, false, 0},
		{"failed status", `{"status":"failed"}`, false, CodeAckRejected, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, Identity: "srv-1"})
			res := waitResult(t, c.Send(context.Background(), testEnvelope(), 1))

			if res.Delivered != tt.wantDelivered {
				t.Fatalf("delivered = %v, want %v (err: %+v)", res.Delivered, tt.wantDelivered, res.Err)
			}
			if tt.wantDelivered {
				return
			}
			if res.Err.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", res.Err.Code, tt.wantCode)
			}
			if res.Err.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", res.Err.Retryable, tt.wantRetryable)
			}
			if res.Err.RetryAfterSeconds != tt.wantAfter {
				t.Errorf("retry_after_seconds = %d, want %d", res.Err.RetryAfterSeconds, tt.wantAfter)
			}
		})
	}
}

func TestSend_NeverBlocksCaller(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(envelope.AcceptedResponse())
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, Identity: "srv-1"})

	start := time.Now()
	ch := c.Send(context.Background(), testEnvelope(), 1)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Send blocked for %v", elapsed)
	}

	select {
	case res := <-ch:
		t.Fatalf("result should not be ready while server is stalled: %+v", res)
	default:
	}
}
