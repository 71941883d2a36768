// Package transport performs asynchronous delivery of event envelopes to the
// ingestion service and classifies the outcome of each attempt.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"telemetry/pkg/envelope"
)

// Auth modes for outbound requests.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
)

// Header names on ingestion requests.
const (
	HeaderServerLogin     = "X-Server-Login"
	HeaderProducerVersion = "X-Producer-Version"
	defaultAPIKeyHeader   = "X-Api-Key"
)

// maxResponseBodySize caps how much of an ack body is read.
const maxResponseBodySize = 1 << 20 // 1 MB

// Config holds transport client configuration.
type Config struct {
	BaseURL        string
	EventPath      string        // default: /v1/events
	Timeout        time.Duration // per-request timeout (default: 10s)
	AuthMode       string        // none|bearer|api_key
	AuthValue      string
	AuthHeaderName string        // header for api_key mode (default: X-Api-Key)
	Identity       string        // producer login sent on every request
	Version        string        // producer version header
	MaxAttempts    int           // forwarded in transport metadata
	RetryBackoffMS int64         // forwarded in transport metadata
	LogCooldown    time.Duration // min interval between failure log lines (default: 30s)
}

func (c Config) withDefaults() Config {
	if c.EventPath == "" {
		c.EventPath = "/v1/events"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.AuthMode == "" {
		c.AuthMode = AuthNone
	}
	if c.AuthHeaderName == "" {
		c.AuthHeaderName = defaultAPIKeyHeader
	}
	if c.LogCooldown <= 0 {
		c.LogCooldown = 30 * time.Second
	}
	return c
}

// Result is the outcome of one delivery attempt. Exactly one Result is
// produced per Send call.
type Result struct {
	Delivered bool
	Err       *DeliveryError
}

// Client sends envelopes over HTTP.
type Client struct {
	client *http.Client
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	lastLog time.Time
}

// New creates a transport client with standard transport settings.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: cfg,
		logger: slog.With("component", "transport"),
	}
}

// Send performs one asynchronous delivery attempt. It never blocks the
// caller and never panics through it: every failure path, including
// panics inside the HTTP round trip, funnels into the returned channel,
// which yields exactly one Result. Serialization failures complete
// synchronously since they will not succeed on retry.
func (c *Client) Send(ctx context.Context, env *envelope.Envelope, attempt int) <-chan Result {
	ch := make(chan Result, 1)

	body, err := json.Marshal(envelope.Request{
		Envelope: env,
		Transport: &envelope.TransportMeta{
			Attempt:        attempt,
			MaxAttempts:    c.config.MaxAttempts,
			RetryBackoffMS: c.config.RetryBackoffMS,
			AuthMode:       c.config.AuthMode,
		},
	})
	if err != nil {
		res := Result{Err: permanentError(CodeEncodingFailed, err.Error())}
		c.logFailure(env, attempt, res.Err)
		ch <- res
		return ch
	}

	go func() {
		res := c.attempt(ctx, body)
		if !res.Delivered {
			c.logFailure(env, attempt, res.Err)
		}
		ch <- res
	}()
	return ch
}

// attempt performs the request and classifies the response.
func (c *Client) attempt(ctx context.Context, body []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: retryableError(CodeTransportException, fmt.Sprintf("panic during send: %v", r))}
		}
	}()

	url := strings.TrimRight(c.config.BaseURL, "/") + c.config.EventPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: retryableError(CodeTransportError, err.Error())}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderServerLogin, c.config.Identity)
	if c.config.Version != "" {
		req.Header.Set(HeaderProducerVersion, c.config.Version)
	}
	switch c.config.AuthMode {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.config.AuthValue)
	case AuthAPIKey:
		req.Header.Set(c.config.AuthHeaderName, c.config.AuthValue)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Err: retryableError(CodeTransportError, err.Error())}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Result{Err: retryableError(CodeTransportError, err.Error())}
	}

	return classify(data)
}

// classify inspects an ack body. Parsing is lenient: a parseable response
// with no explicit rejection counts as success.
func classify(data []byte) Result {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Result{Err: retryableError(CodeEmptyResponse, "receiver returned an empty body")}
	}

	var resp envelope.Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return Result{Err: permanentError(CodeInvalidAckPayload, err.Error())}
	}

	if resp.Error != nil {
		return Result{Err: fromWireError(resp.Error)}
	}

	status := resp.Status
	if resp.Ack != nil {
		status = resp.Ack.Status
	}
	switch strings.ToLower(status) {
	case envelope.StatusRejected, envelope.StatusError, envelope.StatusFailed:
		ack := resp.Ack
		if ack == nil {
			ack = &envelope.Ack{Status: status}
		}
		return Result{Err: fromRejectedAck(ack)}
	default:
		// accepted/ok/success and anything unrecognized is implicit success.
		return Result{Delivered: true}
	}
}

// logFailure logs at most once per cooldown window so a sustained outage
// cannot storm the log.
func (c *Client) logFailure(env *envelope.Envelope, attempt int, derr *DeliveryError) {
	c.mu.Lock()
	now := time.Now()
	if now.Sub(c.lastLog) < c.config.LogCooldown {
		c.mu.Unlock()
		return
	}
	c.lastLog = now
	c.mu.Unlock()

	c.logger.Warn("Delivery failed",
		"code", derr.Code,
		"retryable", derr.Retryable,
		"event", env.EventName,
		"sequence", env.SourceSequence,
		"attempt", attempt,
		"error", derr.Message,
	)
}
