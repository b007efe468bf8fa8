// Package cognitive watches for distraction and deep-work patterns, balances
// alert load, and schedules breaks.
package cognitive

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/types"
	"github.com/vthunder/focuswatch/internal/window"
)

// Config holds pattern thresholds
type Config struct {
	WindowCapacity       int
	DistractionThreshold int // disruptor while the window holds more than this, default 5
	DeepWorkThreshold    int // micro-break while the window holds more than this, default 10
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		WindowCapacity:       window.DefaultCapacity,
		DistractionThreshold: 5,
		DeepWorkThreshold:    10,
	}
}

// Load scales how often and how densely the user is alerted
type Load struct {
	AlertFrequency float64 `json:"alert_frequency"`
	UIDensity      float64 `json:"ui_density"`
}

var (
	normalLoad  = Load{AlertFrequency: 1.0, UIDensity: 1.0}
	reducedLoad = Load{AlertFrequency: 0.5, UIDensity: 0.5}
)

// Engine detects distraction (FocusChanged) and deep-work (IdleChanged)
// patterns. Each rule fires on every push while its window holds more entries
// than the threshold.
type Engine struct {
	cfg         Config
	bus         *bus.Bus
	clock       clock.Clock
	distraction *window.Window[types.FocusEvent]
	deepWork    *window.Window[types.FocusEvent]
	log         zerolog.Logger

	mu   sync.Mutex
	load Load

	subs []bus.SubscriptionID
}

// New validates cfg and builds an engine
func New(cfg Config, b *bus.Bus, clk clock.Clock, log zerolog.Logger) (*Engine, error) {
	def := DefaultConfig()
	if cfg.DistractionThreshold <= 0 {
		cfg.DistractionThreshold = def.DistractionThreshold
	}
	if cfg.DeepWorkThreshold <= 0 {
		cfg.DeepWorkThreshold = def.DeepWorkThreshold
	}
	if clk == nil {
		clk = clock.System{}
	}

	distraction, err := window.New[types.FocusEvent](cfg.WindowCapacity)
	if err != nil {
		return nil, fmt.Errorf("distraction window: %w", err)
	}
	deepWork, err := window.New[types.FocusEvent](cfg.WindowCapacity)
	if err != nil {
		return nil, fmt.Errorf("deep-work window: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		bus:         b,
		clock:       clk,
		distraction: distraction,
		deepWork:    deepWork,
		log:         log,
		load:        normalLoad,
	}, nil
}

// Start subscribes to focus events
func (e *Engine) Start() {
	e.subs = append(e.subs,
		bus.On(e.bus, bus.TopicFocusChanged, e.onFocusChanged),
		bus.On(e.bus, bus.TopicIdleChanged, e.onIdleChanged),
	)
}

// Stop unsubscribes from the bus
func (e *Engine) Stop() {
	for _, id := range e.subs {
		e.bus.Unsubscribe(id)
	}
	e.subs = nil
}

func (e *Engine) onFocusChanged(ev types.FocusEvent) {
	e.distraction.Push(ev)
	count := e.distraction.Len()
	if count <= e.cfg.DistractionThreshold {
		return
	}

	e.log.Info().Int("count", count).Msg("distraction pattern detected")
	e.bus.Publish(bus.TopicNeuralPatternDisruptor, types.NewDerivedEvent(types.DerivedNeuralPatternDisruptor, ev.Timestamp, map[string]any{
		"message":          "Distraction pattern detected",
		"distractionCount": count,
	}))
}

func (e *Engine) onIdleChanged(ev types.FocusEvent) {
	e.deepWork.Push(ev)
	count := e.deepWork.Len()

	e.mu.Lock()
	e.load = e.loadFor(count)
	e.mu.Unlock()

	if count <= e.cfg.DeepWorkThreshold {
		return
	}

	e.log.Info().Int("count", count).Msg("extended deep work session")
	e.bus.Publish(bus.TopicMicroBreak, types.NewDerivedEvent(types.DerivedMicroBreak, ev.Timestamp, map[string]any{
		"message":       "Extended deep work session detected",
		"deepWorkCount": count,
	}))
}

// TrackCompliance records the user's response to a prompt
func (e *Engine) TrackCompliance(prompt string, accepted bool) {
	e.bus.Publish(bus.TopicComplianceTracking, types.NewDerivedEvent(types.DerivedComplianceTracking, e.clock.Now(), map[string]any{
		"message":  "User compliance tracked",
		"prompt":   prompt,
		"accepted": accepted,
	}))
}

// AdjustCognitiveLoad recomputes alert scaling from deep-work window occupancy
func (e *Engine) AdjustCognitiveLoad() Load {
	count := e.deepWork.Len()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.load = e.loadFor(count)
	return e.load
}

func (e *Engine) loadFor(deepWorkCount int) Load {
	if deepWorkCount > e.cfg.DeepWorkThreshold {
		return reducedLoad
	}
	return normalLoad
}

// Load returns the most recently computed scaling
func (e *Engine) Load() Load {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load
}
