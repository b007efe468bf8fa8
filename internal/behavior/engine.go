// Package behavior derives rewards and productivity signals from the focus
// event stream and drives the goal / non-goal focus timer.
package behavior

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/types"
	"github.com/vthunder/focuswatch/internal/window"
)

// Timer is the focus timer the engine drives
type Timer interface {
	StartGoal()
	StartNonGoal()
	Pause()
	State() types.FocusTimerState
	SetOnGoalReward(fn func(goalSeconds int))
}

// Config holds rule thresholds
type Config struct {
	WindowCapacity    int
	SustainedLookback time.Duration // default 25m
	SustainedDensity  int           // focus entries needed, default 5
	SwitchLookback    time.Duration // default 5m
	SwitchThreshold   int           // degradation when count exceeds this, default 3
	NonGoalApps       []string      // regexps matched against the application name
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		WindowCapacity:    window.DefaultCapacity,
		SustainedLookback: 25 * time.Minute,
		SustainedDensity:  5,
		SwitchLookback:    5 * time.Minute,
		SwitchThreshold:   3,
	}
}

// Engine evaluates the sustained-focus and context-switch rules.
// Rules run synchronously inside the bus handler against the window as of
// the triggering publish, using the event's own timestamp as "now".
type Engine struct {
	cfg      Config
	bus      *bus.Bus
	timer    Timer
	nonGoal  []*regexp.Regexp
	clock    clock.Clock
	focus    *window.Window[types.FocusEvent]
	switches *window.Window[types.FocusEvent]
	log      zerolog.Logger

	mu             sync.Mutex
	rewardLatched  bool
	lastReward     time.Time // only focus entries after this qualify
	degradeLatched bool

	subs []bus.SubscriptionID
}

// New validates cfg and builds an engine. timer may be nil.
func New(cfg Config, b *bus.Bus, timer Timer, clk clock.Clock, log zerolog.Logger) (*Engine, error) {
	def := DefaultConfig()
	if cfg.SustainedLookback <= 0 {
		cfg.SustainedLookback = def.SustainedLookback
	}
	if cfg.SustainedDensity <= 0 {
		cfg.SustainedDensity = def.SustainedDensity
	}
	if cfg.SwitchLookback <= 0 {
		cfg.SwitchLookback = def.SwitchLookback
	}
	if cfg.SwitchThreshold <= 0 {
		cfg.SwitchThreshold = def.SwitchThreshold
	}

	focusWin, err := window.New[types.FocusEvent](cfg.WindowCapacity)
	if err != nil {
		return nil, fmt.Errorf("focus-interval window: %w", err)
	}
	switchWin, err := window.New[types.FocusEvent](cfg.WindowCapacity)
	if err != nil {
		return nil, fmt.Errorf("context-switch window: %w", err)
	}

	var patterns []*regexp.Regexp
	for _, p := range cfg.NonGoalApps {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("non-goal app pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	if clk == nil {
		clk = clock.System{}
	}

	return &Engine{
		cfg:      cfg,
		bus:      b,
		timer:    timer,
		nonGoal:  patterns,
		clock:    clk,
		focus:    focusWin,
		switches: switchWin,
		log:      log,
	}, nil
}

// Start subscribes to focus events and hooks the goal reward
func (e *Engine) Start() {
	e.subs = append(e.subs,
		bus.On(e.bus, bus.TopicFocusChanged, e.onFocusChanged),
		bus.On(e.bus, bus.TopicIdleChanged, e.onIdleChanged),
		bus.On(e.bus, bus.TopicApplicationChanged, e.onApplicationChanged),
	)
	if e.timer != nil {
		e.timer.SetOnGoalReward(e.onGoalReward)
	}
}

// Stop unsubscribes from the bus
func (e *Engine) Stop() {
	for _, id := range e.subs {
		e.bus.Unsubscribe(id)
	}
	e.subs = nil
	if e.timer != nil {
		e.timer.SetOnGoalReward(nil)
	}
}

func (e *Engine) onFocusChanged(ev types.FocusEvent) {
	if ev.State != types.StateWorkFocus {
		return
	}
	e.focus.Push(ev)
	e.classify(ev.ApplicationName)
	e.evaluateSustained(ev.Timestamp)
}

func (e *Engine) onApplicationChanged(ev types.FocusEvent) {
	e.classify(ev.ApplicationName)
}

func (e *Engine) onIdleChanged(ev types.FocusEvent) {
	e.switches.Push(ev)
	if e.timer != nil {
		e.timer.Pause()
	}

	// Leaving WorkFocus re-arms the sustained-focus reward
	e.mu.Lock()
	e.rewardLatched = false
	e.mu.Unlock()

	e.evaluateSwitches(ev.Timestamp)
}

// classify starts goal or non-goal timing for app
func (e *Engine) classify(app string) {
	if e.timer == nil {
		return
	}
	if e.IsNonGoal(app) {
		e.timer.StartNonGoal()
		return
	}
	e.timer.StartGoal()
}

// IsNonGoal reports whether app matches a non-goal pattern
func (e *Engine) IsNonGoal(app string) bool {
	for _, re := range e.nonGoal {
		if re.MatchString(app) {
			return true
		}
	}
	return false
}

func (e *Engine) evaluateSustained(now time.Time) {
	e.mu.Lock()
	if e.rewardLatched {
		e.mu.Unlock()
		return
	}
	count := 0
	for ev := range e.focus.WithinLast(e.cfg.SustainedLookback, now) {
		if ev.Timestamp.After(e.lastReward) {
			count++
		}
	}
	if count < e.cfg.SustainedDensity {
		e.mu.Unlock()
		return
	}
	e.rewardLatched = true
	e.lastReward = now
	e.mu.Unlock()

	e.log.Info().Int("focus_entries", count).Msg("sustained focus reward")
	e.publish(bus.TopicRewardEvent, types.NewDerivedEvent(types.DerivedReward, now, map[string]any{
		"goalFocusTime": e.goalSeconds(),
		"trigger":       "sustained_focus",
	}))
}

func (e *Engine) evaluateSwitches(now time.Time) {
	count := e.switches.CountWithinLast(e.cfg.SwitchLookback, now)

	e.mu.Lock()
	if count <= e.cfg.SwitchThreshold {
		e.degradeLatched = false
		e.mu.Unlock()
		return
	}
	if e.degradeLatched {
		e.mu.Unlock()
		return
	}
	e.degradeLatched = true
	e.mu.Unlock()

	e.log.Info().Int("context_switches", count).Msg("productivity degradation")
	e.publish(bus.TopicProductivityDegradation, types.NewDerivedEvent(types.DerivedProductivityDegradation, now, map[string]any{
		"contextSwitches": count,
	}))
}

func (e *Engine) onGoalReward(goalSeconds int) {
	ev := types.NewDerivedEvent(types.DerivedReward, e.clock.Now(), map[string]any{
		"goalFocusTime": goalSeconds,
		"trigger":       "goal_timer",
	})
	e.publish(bus.TopicRewardEvent, ev)
	e.publish(bus.TopicDisplayRewardUI, ev)
}

func (e *Engine) goalSeconds() int {
	if e.timer == nil {
		return 0
	}
	return e.timer.State().GoalSeconds
}

func (e *Engine) publish(topic bus.Topic, ev types.DerivedEvent) {
	e.bus.Publish(topic, ev)
}

// FocusWindow exposes the focus-interval window for inspection
func (e *Engine) FocusWindow() *window.Window[types.FocusEvent] { return e.focus }

// SwitchWindow exposes the context-switch window for inspection
func (e *Engine) SwitchWindow() *window.Window[types.FocusEvent] { return e.switches }
