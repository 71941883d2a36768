// Package pipeline implements the producer-side delivery pipeline: a bounded
// local queue of pending envelopes, retry/backoff decisions, outage tracking,
// and the tick-driven dispatch loop feeding the transport client.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"telemetry/internal/transport"
	"telemetry/pkg/envelope"
)

// Sender performs one asynchronous delivery attempt. The returned channel
// yields exactly one result.
type Sender interface {
	Send(ctx context.Context, env *envelope.Envelope, attempt int) <-chan transport.Result
}

// MetricsRecorder is an optional interface for recording pipeline metrics.
type MetricsRecorder interface {
	RecordPipelineDelivered(ctx context.Context, durationSeconds float64)
	RecordPipelineFailed(ctx context.Context)
	RecordPipelineDropped(ctx context.Context)
	RecordPipelineRequeued(ctx context.Context)
	RecordPipelineQueueDepth(ctx context.Context, depth int64)
	RecordPipelineOutage(ctx context.Context, active bool)
}

// Telemetry holds the pipeline's cumulative counters. It is owned by the
// Pipeline and read through Stats(); nothing here is ambient global state.
type Telemetry struct {
	Produced          int64 // envelopes accepted by Produce
	Delivered         int64 // successful deliveries
	Dropped           int64 // dropped at capacity (newest-first eviction)
	PermanentFailures int64 // dropped after exhausting or short-circuiting retries
	Requeued          int64 // items put back for another attempt
	Retries           int64 // total retry attempts performed
	HighWater         int   // max observed queue depth
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	QueueDepth int
	InFlight   int
	Telemetry  Telemetry
	Outage     OutageState
}

// completion carries a finished send back onto the pipeline's own lock.
type completion struct {
	item    *Item
	res     transport.Result
	started time.Time
}

// Pipeline owns the queue and retry policy. Produce may be called from any
// goroutine; Tick is expected from a periodic scheduler. All queue mutation
// happens under one lock, including send completions, which are folded back
// in during ticks rather than applied from transport goroutines.
type Pipeline struct {
	config  Config
	policy  Policy
	sender  Sender
	logger  *slog.Logger
	metrics MetricsRecorder

	mu          sync.Mutex
	queue       *Queue
	outage      *OutageTracker
	stats       Telemetry
	completions chan completion
	inflight    int
	nextID      int64
	growthMark  int
	clock       func() time.Time
}

// New creates a pipeline. metrics may be nil.
func New(cfg Config, sender Sender, metrics MetricsRecorder) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		config:      cfg,
		policy:      NewPolicy(cfg),
		sender:      sender,
		logger:      slog.With("component", "pipeline"),
		metrics:     metrics,
		queue:       &Queue{},
		outage:      NewOutageTracker(cfg.OutageAfter, cfg.TripOnPermanent),
		completions: make(chan completion, cfg.MaxQueueSize+cfg.BatchSize+1),
		clock:       time.Now,
	}
	return p
}

// Produce accepts a freshly built envelope. It never fails: when the queue
// is at capacity the new event is dropped (never an older in-flight retry)
// and the drop counter incremented. Otherwise the envelope is enqueued ready
// and, when configured, an opportunistic send is attempted immediately.
func (p *Pipeline) Produce(env *envelope.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if p.queue.Count() >= p.config.MaxQueueSize {
		p.stats.Dropped++
		if p.metrics != nil {
			p.metrics.RecordPipelineDropped(context.Background())
		}
		p.logger.Debug("Event dropped, queue full",
			"event", env.EventName,
			"sequence", env.SourceSequence,
			"queue_depth", p.queue.Count(),
		)
		return
	}

	p.nextID++
	item := &Item{
		ID:            p.nextID,
		Envelope:      env,
		Attempt:       1,
		QueuedAt:      now,
		NextAttemptAt: now,
	}
	p.queue.Enqueue(item)
	p.stats.Produced++
	p.noteDepthLocked()

	if p.config.SendOnProduce {
		p.dispatchReadyLocked(context.Background(), now, 1)
	}
}

// OnHeartbeatInterval routes a heartbeat/registration envelope through the
// same produce path. Heartbeats are not special-cased in the queue, only in
// who constructs them.
func (p *Pipeline) OnHeartbeatInterval(env *envelope.Envelope) {
	p.Produce(env)
}

// Tick drains completed sends, then dispatches up to the configured batch of
// ready items. Bounded so a deep queue cannot monopolize the timer; items
// beyond the batch wait for the next tick.
func (p *Pipeline) Tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drainCompletionsLocked()
	p.dispatchReadyLocked(ctx, p.clock(), p.config.BatchSize)
	// Fold in async completions that finished during dispatch.
	p.drainCompletionsLocked()

	if p.metrics != nil {
		p.metrics.RecordPipelineQueueDepth(ctx, int64(p.queue.Count()))
	}
}

// Stats returns a snapshot of pipeline state.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueDepth: p.queue.Count(),
		InFlight:   p.inflight,
		Telemetry:  p.stats,
		Outage:     p.outage.Snapshot(),
	}
}

// Snapshot returns the queue/retry/outage telemetry embedded into outbound
// envelope metadata.
func (p *Pipeline) Snapshot() map[string]any {
	s := p.Stats()
	snap := map[string]any{
		"queue_depth":        s.QueueDepth,
		"queue_high_water":   s.Telemetry.HighWater,
		"dropped_events":     s.Telemetry.Dropped,
		"permanent_failures": s.Telemetry.PermanentFailures,
		"retries":            s.Telemetry.Retries,
		"outage_active":      s.Outage.Active,
	}
	if s.Outage.Active {
		snap["outage_started_at"] = s.Outage.StartedAt.UTC().Format(time.RFC3339)
		snap["outage_failures"] = s.Outage.Failures
		if s.Outage.LastError != "" {
			snap["outage_last_error"] = s.Outage.LastError
		}
	}
	return snap
}

// Close attempts a final flush of pending deliveries within the context
// deadline, then logs the pipeline's final counters.
func (p *Pipeline) Close(ctx context.Context) error {
	for {
		p.Tick(ctx)

		p.mu.Lock()
		remaining := p.queue.Count() + p.inflight
		p.mu.Unlock()
		if remaining == 0 {
			break
		}

		select {
		case <-ctx.Done():
			p.logger.Warn("Pipeline shutdown timed out", "remaining", remaining)
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	stats := p.Stats()
	p.logger.Info("Pipeline drained",
		"delivered", stats.Telemetry.Delivered,
		"dropped", stats.Telemetry.Dropped,
		"permanent_failures", stats.Telemetry.PermanentFailures,
	)
	return nil
}

// dispatchReadyLocked starts sends for up to limit ready items. Items in
// flight are out of the queue until their completion is folded back in.
func (p *Pipeline) dispatchReadyLocked(ctx context.Context, now time.Time, limit int) {
	for i := 0; i < limit; i++ {
		item := p.queue.DequeueReady(now)
		if item == nil {
			return
		}
		p.inflight++
		if item.Attempt > 1 {
			p.stats.Retries++
		}

		ch := p.sender.Send(ctx, item.Envelope, item.Attempt)
		select {
		case res := <-ch:
			// Fast local results are applied inline: the completions
			// channel can already be full of async results, and a
			// blocked send here would hold the lock.
			p.handleCompletionLocked(completion{item: item, res: res, started: now})
		default:
			go func(item *Item, started time.Time) {
				res := <-ch
				p.completions <- completion{item: item, res: res, started: started}
			}(item, now)
		}
	}
}

// drainCompletionsLocked applies every finished send currently available.
func (p *Pipeline) drainCompletionsLocked() {
	for {
		select {
		case comp := <-p.completions:
			p.handleCompletionLocked(comp)
		default:
			return
		}
	}
}

func (p *Pipeline) handleCompletionLocked(comp completion) {
	p.inflight--
	now := p.clock()
	ctx := context.Background()

	if comp.res.Delivered {
		p.stats.Delivered++
		if p.metrics != nil {
			p.metrics.RecordPipelineDelivered(ctx, now.Sub(comp.started).Seconds())
		}
		if p.outage.RecordSuccess() {
			p.logger.Info("Delivery recovered",
				"event", comp.item.Envelope.EventName,
				"attempt", comp.item.Attempt,
			)
			if p.metrics != nil {
				p.metrics.RecordPipelineOutage(ctx, false)
			}
		}
		return
	}

	derr := comp.res.Err
	comp.item.LastErr = derr
	if p.outage.RecordFailure(derr) {
		p.logger.Warn("Delivery outage detected",
			"consecutive_failures", p.outage.Snapshot().Failures,
			"error", derr.Message,
		)
		if p.metrics != nil {
			p.metrics.RecordPipelineOutage(ctx, true)
		}
	}

	if p.policy.ShouldRetry(comp.item, derr) {
		delay := p.policy.Delay(comp.item)
		comp.item.MarkRetry(now, delay)
		p.queue.Requeue(comp.item)
		p.stats.Requeued++
		if p.metrics != nil {
			p.metrics.RecordPipelineRequeued(ctx)
		}
		return
	}

	p.stats.PermanentFailures++
	if p.metrics != nil {
		p.metrics.RecordPipelineFailed(ctx)
	}
	p.logger.Debug("Delivery abandoned",
		"event", comp.item.Envelope.EventName,
		"attempts", comp.item.Attempt,
		"code", derr.Code,
	)
}

// noteDepthLocked updates the high-water mark and logs when the queue
// crosses another growth step, so operators see pressure trending without
// per-event noise.
func (p *Pipeline) noteDepthLocked() {
	depth := p.queue.Count()
	if depth <= p.stats.HighWater {
		return
	}
	p.stats.HighWater = depth
	if bucket := depth / p.config.GrowthLogStep; bucket > p.growthMark {
		p.growthMark = bucket
		p.logger.Warn("Queue depth growing",
			"queue_depth", depth,
			"max", p.config.MaxQueueSize,
		)
	}
}
