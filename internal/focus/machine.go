// Package focus classifies raw activity into WorkFocus / BreakLeisure and
// publishes edge-triggered transitions on the bus.
package focus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/types"
)

// Publisher is the part of the bus the machine needs
type Publisher interface {
	Publish(topic bus.Topic, payload any)
}

// Config holds state machine tuning
type Config struct {
	IdleThreshold time.Duration // inactivity before BreakLeisure (default 5m)
	CheckInterval time.Duration // idle check period (default 1s)
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		IdleThreshold: 300 * time.Second,
		CheckInterval: time.Second,
	}
}

// Machine is the focus state machine. Initial state is WorkFocus.
type Machine struct {
	mu           sync.Mutex // guards state fields
	state        types.FocusState
	lastApp      string
	lastActivity time.Time

	// emitMu serializes transition+publish so subscribers see transitions
	// in the order they happened. Handlers must not feed samples back into
	// the machine synchronously.
	emitMu sync.Mutex

	cfg   Config
	clock clock.Clock
	pub   Publisher
	log   zerolog.Logger

	// Control
	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a machine in WorkFocus with lastActivity = now
func New(cfg Config, clk clock.Clock, pub Publisher, log zerolog.Logger) *Machine {
	def := DefaultConfig()
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = def.IdleThreshold
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Machine{
		state:        types.StateWorkFocus,
		lastActivity: clk.Now(),
		cfg:          cfg,
		clock:        clk,
		pub:          pub,
		log:          log,
	}
}

// State returns the current state and last application
func (m *Machine) State() (types.FocusState, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastApp
}

// LastActivity returns the time of the most recent observed input
func (m *Machine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// OnActivitySample records activity in the given window
func (m *Machine) OnActivitySample(sample types.ActivitySample) {
	if sample.ActiveWindow == "" {
		m.log.Debug().Msg("ignoring sample with empty window name")
		return
	}
	at := sample.ObservedAt
	if at.IsZero() {
		at = m.clock.Now()
	}

	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if at.After(m.lastActivity) {
		m.lastActivity = at
	}
	prevApp := m.lastApp
	m.lastApp = sample.ActiveWindow

	var topic bus.Topic
	var ev types.FocusEvent
	switch {
	case m.state != types.StateWorkFocus:
		m.state = types.StateWorkFocus
		topic = bus.TopicFocusChanged
		ev = m.event(types.KindFocusChanged, at)
	case prevApp != "" && prevApp != sample.ActiveWindow:
		topic = bus.TopicApplicationChanged
		ev = m.event(types.KindApplicationChanged, at)
	}
	m.mu.Unlock()

	if topic == "" {
		return
	}
	m.log.Debug().Str("kind", string(ev.Kind)).Str("app", ev.ApplicationName).Msg("focus event")
	m.pub.Publish(topic, ev)
}

// OnIdleReport takes the platform's input idle duration. Input observed at
// now-idle advances lastActivity when later than what was recorded.
func (m *Machine) OnIdleReport(idle time.Duration) {
	if idle < 0 {
		return
	}
	now := m.clock.Now()
	input := now.Add(-idle)

	m.mu.Lock()
	if input.After(m.lastActivity) {
		m.lastActivity = input
	}
	m.mu.Unlock()

	m.CheckIdle(now)
}

// CheckIdle transitions to BreakLeisure once now-lastActivity exceeds the
// idle threshold. Calling it again at the same or a later time is harmless.
func (m *Machine) CheckIdle(now time.Time) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.state == types.StateBreakLeisure || now.Sub(m.lastActivity) <= m.cfg.IdleThreshold {
		m.mu.Unlock()
		return
	}
	m.state = types.StateBreakLeisure
	ev := m.event(types.KindIdleChanged, now)
	m.mu.Unlock()

	m.log.Info().Str("app", ev.ApplicationName).Dur("idle", now.Sub(m.LastActivity())).Msg("user idle")
	m.pub.Publish(bus.TopicIdleChanged, ev)
}

// event builds a FocusEvent from current state. Caller holds m.mu.
func (m *Machine) event(kind types.FocusEventKind, at time.Time) types.FocusEvent {
	return types.FocusEvent{
		EventID:         types.NewEventID(),
		Kind:            kind,
		State:           m.state,
		ApplicationName: m.lastApp,
		Timestamp:       at,
	}
}

// Start begins the periodic idle check
func (m *Machine) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.checkLoop(m.stopChan, m.done)
	m.log.Info().Dur("threshold", m.cfg.IdleThreshold).Dur("interval", m.cfg.CheckInterval).Msg("started")
}

// Stop halts the idle check. It returns after the loop has exited and is
// safe to call more than once.
func (m *Machine) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopChan)
	<-m.done
	m.running = false
}

func (m *Machine) checkLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A stop racing with the tick wins
			select {
			case <-stop:
				return
			default:
			}
			m.CheckIdle(m.clock.Now())
		}
	}
}
