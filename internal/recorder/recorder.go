// Package recorder persists bus traffic to the store without blocking publishers.
package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/telemetry"
	"github.com/vthunder/focuswatch/internal/types"
)

// Sink is the persistence the recorder writes to
type Sink interface {
	InsertFocusRecord(ctx context.Context, r types.FocusRecord) error
	InsertBehavioralEvent(ctx context.Context, ev types.DerivedEvent) error
}

// focusTopics are stored as focus records
var focusTopics = []bus.Topic{
	bus.TopicFocusChanged,
	bus.TopicIdleChanged,
	bus.TopicApplicationChanged,
}

// derivedTopics are stored as behavioral events
var derivedTopics = []bus.Topic{
	bus.TopicRewardEvent,
	bus.TopicProductivityDegradation,
	bus.TopicNeuralPatternDisruptor,
	bus.TopicMicroBreak,
	bus.TopicComplianceTracking,
	bus.TopicBreakScheduled,
	bus.TopicBreakAccepted,
	bus.TopicBreakDismissed,
	bus.TopicSkippedBreak,
	bus.TopicBreakCompliance,
}

// batchTimeout bounds a single flush; batches outlive cancellation of the loop ctx
const batchTimeout = 10 * time.Second

type record struct {
	focus   *types.FocusRecord
	derived *types.DerivedEvent
}

// Config holds recorder tuning
type Config struct {
	MaxPending    int           // records held before new ones are dropped, default 1000
	FlushInterval time.Duration // default 2s
	FlushSize     int           // pending count that triggers an early flush, default 50
}

// DefaultConfig returns the standard recorder settings
func DefaultConfig() Config {
	return Config{
		MaxPending:    1000,
		FlushInterval: 2 * time.Second,
		FlushSize:     50,
	}
}

// Recorder buffers focus and derived events and writes them from a
// background loop. Write failures are logged and never reach the bus.
type Recorder struct {
	cfg  Config
	sink Sink
	bus  *bus.Bus
	log  zerolog.Logger

	mu       sync.Mutex
	pending  []record
	drainCtx context.Context

	dropped atomic.Int64 // queue full
	failed  atomic.Int64 // write errors
	written atomic.Int64

	flushCh  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
	subs     []bus.SubscriptionID
}

// New creates a recorder; call Start to subscribe and begin writing
func New(cfg Config, sink Sink, b *bus.Bus, log zerolog.Logger) *Recorder {
	def := DefaultConfig()
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = def.FlushSize
	}
	return &Recorder{
		cfg:     cfg,
		sink:    sink,
		bus:     b,
		log:     log,
		flushCh: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the bus and begins the flush loop. Call Drain to stop.
func (r *Recorder) Start(ctx context.Context) {
	r.registerMetrics()

	for _, topic := range focusTopics {
		r.subs = append(r.subs, bus.On(r.bus, topic, func(ev types.FocusEvent) {
			rec := types.RecordOf(ev)
			r.enqueue(record{focus: &rec})
		}))
	}
	for _, topic := range derivedTopics {
		r.subs = append(r.subs, bus.On(r.bus, topic, func(ev types.DerivedEvent) {
			r.enqueue(record{derived: &ev})
		}))
	}

	r.started.Store(true)
	go r.flushLoop(ctx)
}

// enqueue never blocks the publisher. A full queue drops the record.
func (r *Recorder) enqueue(rec record) {
	r.mu.Lock()
	if len(r.pending) >= r.cfg.MaxPending {
		r.mu.Unlock()
		n := r.dropped.Add(1)
		r.log.Warn().Int64("dropped_total", n).Msg("record queue full, dropping")
		return
	}
	r.pending = append(r.pending, rec)
	full := len(r.pending) >= r.cfg.FlushSize
	r.mu.Unlock()

	if full {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

func (r *Recorder) flushLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.finalFlush(ctx)
			return
		case <-ctx.Done():
			r.finalFlush(ctx)
			return
		case <-ticker.C:
			r.flushBatch(ctx)
		case <-r.flushCh:
			r.flushBatch(ctx)
		}
	}
}

// flushBatch writes pending records detached from ctx cancellation so that
// a batch in flight when Drain is called still completes.
func (r *Recorder) flushBatch(ctx context.Context) {
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchTimeout)
	defer cancel()
	r.flush(batchCtx)
}

// finalFlush writes what is left, bounded by the Drain ctx when there is one
func (r *Recorder) finalFlush(ctx context.Context) {
	r.mu.Lock()
	drainCtx := r.drainCtx
	r.mu.Unlock()
	if drainCtx == nil {
		r.flushBatch(ctx)
		return
	}
	r.flush(drainCtx)
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, rec := range batch {
		var err error
		switch {
		case rec.focus != nil:
			err = r.sink.InsertFocusRecord(ctx, *rec.focus)
		case rec.derived != nil:
			err = r.sink.InsertBehavioralEvent(ctx, *rec.derived)
		}
		if err != nil {
			r.failed.Add(1)
			r.log.Error().Err(err).Msg("failed to persist record")
			continue
		}
		r.written.Add(1)
	}
	r.log.Debug().Int("batch_size", len(batch)).Msg("batch flushed")
}

// Drain unsubscribes, stops the loop after a final flush and waits for it.
// ctx bounds both the wait and the final writes.
func (r *Recorder) Drain(ctx context.Context) {
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	r.subs = nil

	r.mu.Lock()
	r.drainCtx = ctx
	r.mu.Unlock()

	if !r.started.Load() {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
	case <-ctx.Done():
		r.log.Warn().Msg("drain timed out waiting for flush loop")
	}
}

// Stats reports recorder counters
type Stats struct {
	Pending int   `json:"pending"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Stats returns current counters
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	pending := len(r.pending)
	r.mu.Unlock()
	return Stats{
		Pending: pending,
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

// registerMetrics exposes queue depth and drop counts as observable gauges
func (r *Recorder) registerMetrics() {
	meter := telemetry.Meter("github.com/vthunder/focuswatch/recorder")

	_, _ = meter.Int64ObservableGauge("focuswatch.recorder.depth",
		metric.WithDescription("Records waiting to be written"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(r.Stats().Pending))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableCounter("focuswatch.recorder.dropped",
		metric.WithDescription("Records dropped because the queue was full"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.dropped.Load())
			return nil
		}),
	)
}
