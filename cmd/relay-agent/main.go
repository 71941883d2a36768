// relay-agent runs next to a game server: it accepts locally produced
// events, queues them, and delivers them to the ingest service with retries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telemetry/internal/api"
	"telemetry/internal/config"
	"telemetry/internal/observability"
	"telemetry/internal/pipeline"
	"telemetry/internal/transport"
	"telemetry/pkg/envelope"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration (env > settings file > defaults)
	cfg, err := config.LoadAgentConfig()
	if err != nil {
		return err
	}
	if cfg.ServerLogin == "" {
		return errors.New("SERVER_LOGIN is required")
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Transport client delivering to the ingest service
	sender := transport.New(transport.Config{
		BaseURL:        cfg.APIBaseURL,
		EventPath:      cfg.EventPath,
		Timeout:        cfg.SendTimeout,
		AuthMode:       cfg.AuthMode,
		AuthValue:      cfg.AuthValue,
		AuthHeaderName: cfg.AuthHeader,
		Identity:       cfg.ServerLogin,
		Version:        cfg.ProducerVersion,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBackoffMS: cfg.RetryBackoff.Milliseconds(),
	})

	// Delivery pipeline
	p := pipeline.New(pipeline.Config{
		MaxQueueSize:  cfg.MaxQueueSize,
		BatchSize:     cfg.BatchSize,
		MaxAttempts:   cfg.MaxAttempts,
		BaseDelay:     cfg.RetryBackoff,
		MaxDelay:      cfg.MaxBackoff,
		SendOnProduce: cfg.SendOnProduce,
	}, sender, metrics)

	// Envelope builder; outbound metadata carries the pipeline snapshot
	builder := envelope.NewBuilder(cfg.ServerLogin, cfg.ProducerVersion, p.Snapshot)

	slog.Info("Relay agent starting",
		"login", cfg.ServerLogin,
		"target", cfg.APIBaseURL,
		"queue_size", cfg.MaxQueueSize,
	)

	// Local intake server for the game process
	intakeServer := &http.Server{
		Addr:         ":" + cfg.IntakePort,
		Handler:      api.NewIntakeRouter(builder, p, metrics),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting intake server", "port", cfg.IntakePort)
		if err := intakeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Dispatch loop: one tick roughly per second drains completions and
	// sends ready items; a slower loop routes heartbeats through produce.
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	go func() {
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.Tick(loopCtx)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.OnHeartbeatInterval(builder.BuildHeartbeat(nil))
			}
		}
	}()

	// Announce the agent immediately rather than waiting a full interval.
	p.OnHeartbeatInterval(builder.BuildHeartbeat(nil))

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := intakeServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Intake server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Stop accepting new events
	slog.Info("Starting graceful shutdown")
	shutdown(10 * time.Second)

	// Phase 2: Stop the timer loops
	cancelLoops()

	// Phase 3: Final flush of the delivery queue
	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer flushCancel()
	if err := p.Close(flushCtx); err != nil {
		slog.Warn("Pipeline flush incomplete", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
