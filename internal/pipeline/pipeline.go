package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// drainTimeout bounds the final flush after shutdown is requested.
	drainTimeout = 5 * time.Second
)

// BatchLoader writes multiple query events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.QueryEvent) error
}

// Options tunes batching. Zero values select the defaults.
type Options struct {
	BufferSize    int           // queued events before Publish starts dropping; default 1024
	BatchSize     int           // events per LoadBatch call; default 50
	FlushInterval time.Duration // max time an event waits in a partial batch; default 500ms
	Clock         clockwork.Clock
}

// Publisher batches query events off the request path and hands them to a
// BatchLoader. Publish never blocks; events are dropped when the buffer is full.
type Publisher struct {
	loader        BatchLoader
	logger        *slog.Logger
	metrics       *observability.Metrics
	clock         clockwork.Clock
	events        chan domain.QueryEvent
	batchSize     int
	flushInterval time.Duration
	running       atomic.Bool
}

// New creates a Publisher. Call Run to start draining events.
func New(loader BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Publisher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Publisher{
		loader:        loader,
		logger:        logger,
		metrics:       metrics,
		clock:         opts.Clock,
		events:        make(chan domain.QueryEvent, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
	}
}

// Publish enqueues an event without blocking. It reports false when the
// buffer is full and the event was dropped.
func (p *Publisher) Publish(ev domain.QueryEvent) bool {
	select {
	case p.events <- ev:
		return true
	default:
		p.metrics.EventsDropped.Inc()
		return false
	}
}

// CheckReadiness returns nil while the publish loop is running.
func (p *Publisher) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("event publisher is not running")
	}
	return nil
}

// Run drains queued events in batches until the context is cancelled, then
// flushes what is still buffered.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("event publisher started", "batch_size", p.batchSize, "flush_interval", p.flushInterval)
	p.running.Store(true)
	p.metrics.PublisherRunning.Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.PublisherRunning.Set(0)
	}()

	ticker := p.clock.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.QueryEvent, 0, p.batchSize)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("event publisher stopping", "reason", ctx.Err())
			p.drain(ctx, batch)
			return nil
		case ev := <-p.events:
			batch = append(batch, ev)
			if len(batch) >= p.batchSize && p.flush(ctx, batch) {
				batch = batch[:0]
			}
		case <-ticker.Chan():
			if len(batch) > 0 && p.flush(ctx, batch) {
				batch = batch[:0]
			}
		}
	}
}

// flush loads one batch, retrying with exponential backoff until it succeeds
// or the context is cancelled. It reports false when the batch was not
// delivered; Run then keeps it for the final drain.
func (p *Publisher) flush(ctx context.Context, batch []domain.QueryEvent) bool {
	start := p.clock.Now()
	backoff := initialBackoff

	for {
		err := p.loader.LoadBatch(ctx, batch)
		if err == nil {
			p.metrics.EventsPublished.Add(float64(len(batch)))
			p.metrics.BatchSize.Observe(float64(len(batch)))
			p.metrics.BatchProcessingDuration.Observe(p.clock.Since(start).Seconds())
			return true
		}

		p.metrics.PublishErrors.Inc()
		if ctx.Err() != nil {
			p.logger.Warn("deferring event batch to final flush", "error", err, "batch_size", len(batch))
			return false
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(batch), "retry_in", backoff)

		if !p.sleep(ctx, backoff) {
			p.logger.Warn("deferring event batch to final flush", "batch_size", len(batch))
			return false
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// drain makes one bounded attempt to publish the partial batch plus anything
// still queued.
func (p *Publisher) drain(ctx context.Context, batch []domain.QueryEvent) {
	for drained := false; !drained; {
		select {
		case ev := <-p.events:
			batch = append(batch, ev)
		default:
			drained = true
		}
	}
	if len(batch) == 0 {
		return
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	if err := p.loader.LoadBatch(drainCtx, batch); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Error("final flush failed", "error", err, "batch_size", len(batch))
		return
	}
	p.metrics.EventsPublished.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
}

// sleep waits d on the publisher's clock. Returns false if the context is
// cancelled first.
func (p *Publisher) sleep(ctx context.Context, d time.Duration) bool {
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
