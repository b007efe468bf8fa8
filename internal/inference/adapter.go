package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/telemetry"
	"github.com/vthunder/focuswatch/internal/types"
	"github.com/vthunder/focuswatch/internal/window"
)

// Config holds adapter tuning
type Config struct {
	QueueSize      int           // pending predictions, default 64
	SwitchLookback time.Duration // context-switch feature horizon, default 1h
	PredictTimeout time.Duration // default 2s
}

// DefaultConfig returns the standard adapter settings
func DefaultConfig() Config {
	return Config{
		QueueSize:      64,
		SwitchLookback: time.Hour,
		PredictTimeout: 2 * time.Second,
	}
}

type job struct {
	features Features
	at       time.Time
}

// holder lets an interface value live behind atomic.Pointer
type holder struct {
	model Model
}

// Adapter owns the active model and turns focus events into
// DistractionProbabilityUpdated publications on a single worker.
type Adapter struct {
	cfg     Config
	backend Backend
	bus     *bus.Bus
	log     zerolog.Logger

	model atomic.Pointer[holder]
	last  atomic.Pointer[types.ProbabilityUpdate]

	// Feature state, touched only from bus handlers
	featMu     sync.Mutex
	currentApp string
	appSince   time.Time
	switches   *window.Window[types.FocusEvent]

	mu      sync.Mutex
	queue   chan job
	stopped bool
	started bool
	done    chan struct{}
	subs    []bus.SubscriptionID

	probability metric.Float64Histogram
}

// New creates an adapter with no model loaded. backend may be nil.
func New(cfg Config, backend Backend, b *bus.Bus, log zerolog.Logger) (*Adapter, error) {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SwitchLookback <= 0 {
		cfg.SwitchLookback = def.SwitchLookback
	}
	if cfg.PredictTimeout <= 0 {
		cfg.PredictTimeout = def.PredictTimeout
	}

	switches, err := window.New[types.FocusEvent](window.DefaultCapacity)
	if err != nil {
		return nil, fmt.Errorf("switch window: %w", err)
	}

	a := &Adapter{
		cfg:      cfg,
		backend:  backend,
		bus:      b,
		log:      log,
		switches: switches,
		queue:    make(chan job, cfg.QueueSize),
		done:     make(chan struct{}),
	}

	hist, err := telemetry.Meter("github.com/vthunder/focuswatch/inference").Float64Histogram(
		"focuswatch.inference.probability",
		metric.WithDescription("Predicted distraction probability"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("inference metrics disabled")
		a.probability = noop.Float64Histogram{}
	} else {
		a.probability = hist
	}
	return a, nil
}

// LoadModel installs the backend's model, or the placeholder when the
// backend has none or fails. Always leaves a model loaded.
func (a *Adapter) LoadModel(ctx context.Context) Model {
	var m Model
	var err error
	if a.backend == nil {
		err = ErrModelNotFound
	} else {
		m, err = a.backend.Load(ctx)
	}

	switch {
	case err == nil && m != nil:
		a.log.Info().Str("version", m.Version()).Msg("model loaded")
	case errors.Is(err, ErrModelNotFound) || err == nil:
		a.log.Info().Msg("no stored model, using placeholder")
		m = Placeholder()
	default:
		a.log.Warn().Err(err).Msg("model load failed, using placeholder")
		m = Placeholder()
	}

	a.model.Store(&holder{model: m})
	return m
}

// ReplaceModel swaps in m atomically. Predictions already running finish on
// the model they started with. The new model is saved best effort.
func (a *Adapter) ReplaceModel(ctx context.Context, m Model) error {
	if m == nil {
		return errors.New("inference: nil model")
	}
	a.model.Store(&holder{model: m})
	a.log.Info().Str("version", m.Version()).Msg("model replaced")

	if a.backend != nil {
		if err := a.backend.Save(ctx, m); err != nil {
			a.log.Warn().Err(err).Msg("failed to persist replacement model")
		}
	}
	return nil
}

// Model returns the active model, or nil
func (a *Adapter) Model() Model {
	h := a.model.Load()
	if h == nil {
		return nil
	}
	return h.model
}

// Predict runs the active model
func (a *Adapter) Predict(ctx context.Context, f Features) (float64, error) {
	p, _, err := a.predict(ctx, f)
	return p, err
}

// predict also reports which model version produced the result
func (a *Adapter) predict(ctx context.Context, f Features) (float64, string, error) {
	h := a.model.Load()
	if h == nil {
		return 0, "", ErrNoModel
	}
	p, err := h.model.Predict(ctx, f)
	if err != nil {
		return 0, "", fmt.Errorf("predict with %s: %w", h.model.Version(), err)
	}
	return min(max(p, 0), 1), h.model.Version(), nil
}

// LastProbability returns the most recent published prediction
func (a *Adapter) LastProbability() (types.ProbabilityUpdate, bool) {
	p := a.last.Load()
	if p == nil {
		return types.ProbabilityUpdate{}, false
	}
	return *p, true
}

// Start subscribes to focus events and runs the prediction worker
func (a *Adapter) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true

	a.subs = append(a.subs,
		bus.On(a.bus, bus.TopicFocusChanged, a.onFocusChanged),
		bus.On(a.bus, bus.TopicIdleChanged, a.onIdleChanged),
		bus.On(a.bus, bus.TopicApplicationChanged, a.onApplicationChanged),
	)
	go a.worker()
}

// Stop unsubscribes, drains queued predictions and waits for the worker
func (a *Adapter) Stop() {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	started := a.started
	close(a.queue)
	a.mu.Unlock()

	for _, id := range subs {
		a.bus.Unsubscribe(id)
	}
	if started {
		<-a.done
	}
}

func (a *Adapter) onFocusChanged(ev types.FocusEvent) {
	a.featMu.Lock()
	a.currentApp = ev.ApplicationName
	a.appSince = ev.Timestamp
	f := a.featuresAt(ev.Timestamp)
	a.featMu.Unlock()
	a.enqueue(f, ev.Timestamp)
}

func (a *Adapter) onApplicationChanged(ev types.FocusEvent) {
	a.switches.Push(ev)
	a.featMu.Lock()
	a.currentApp = ev.ApplicationName
	a.appSince = ev.Timestamp
	f := a.featuresAt(ev.Timestamp)
	a.featMu.Unlock()
	a.enqueue(f, ev.Timestamp)
}

func (a *Adapter) onIdleChanged(ev types.FocusEvent) {
	a.switches.Push(ev)
	a.featMu.Lock()
	f := a.featuresAt(ev.Timestamp)
	a.featMu.Unlock()
	a.enqueue(f, ev.Timestamp)
}

// featuresAt captures features as of at. Caller holds featMu.
func (a *Adapter) featuresAt(at time.Time) Features {
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	usage := 0.0
	if !a.appSince.IsZero() && at.After(a.appSince) {
		usage = at.Sub(a.appSince).Minutes()
	}
	return Features{
		TimeOfDay:           at.Sub(midnight).Hours() / 24,
		CurrentAppUsage:     usage,
		PastContextSwitches: float64(a.switches.CountWithinLast(a.cfg.SwitchLookback, at)),
	}
}

func (a *Adapter) enqueue(f Features, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	select {
	case a.queue <- job{features: f, at: at}:
	default:
		a.log.Debug().Msg("prediction queue full, dropping")
	}
}

func (a *Adapter) worker() {
	defer close(a.done)
	for j := range a.queue {
		a.run(j)
	}
}

func (a *Adapter) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PredictTimeout)
	defer cancel()

	p, version, err := a.predict(ctx, j.features)
	if err != nil {
		a.log.Warn().Err(err).Msg("prediction failed")
		return
	}

	update := types.ProbabilityUpdate{Probability: p, ModelVersion: version, Timestamp: j.at}
	a.last.Store(&update)
	a.probability.Record(ctx, p)

	a.log.Debug().Float64("probability", p).Msg("distraction probability updated")
	a.bus.Publish(bus.TopicDistractionProbabilityUpdated, update)
}
