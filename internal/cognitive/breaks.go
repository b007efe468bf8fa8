package cognitive

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/types"
)

// BreakConfig controls break scheduling
type BreakConfig struct {
	Interval time.Duration // goal focus between breaks, default 50m
	Duration time.Duration // delay before the break prompt, default 5m
}

// DefaultBreakConfig returns the standard break settings
func DefaultBreakConfig() BreakConfig {
	return BreakConfig{
		Interval: 50 * time.Minute,
		Duration: 5 * time.Minute,
	}
}

// BreakScheduler watches accumulated goal focus time and prompts for breaks
type BreakScheduler struct {
	cfg   BreakConfig
	bus   *bus.Bus
	clock clock.Clock
	log   zerolog.Logger

	mu          sync.Mutex
	sinceGoal   int // goal seconds at the last scheduled break
	pending     *time.Timer
	skipped     int
	stopped     bool
	scheduledAt time.Time

	// fireMu is held while a break prompt is published so Stop can wait it out
	fireMu sync.Mutex

	sub bus.SubscriptionID
}

// NewBreakScheduler creates a scheduler; call Start to subscribe
func NewBreakScheduler(cfg BreakConfig, b *bus.Bus, clk clock.Clock, log zerolog.Logger) *BreakScheduler {
	def := DefaultBreakConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &BreakScheduler{cfg: cfg, bus: b, clock: clk, log: log}
}

// Start subscribes to timer ticks
func (s *BreakScheduler) Start() {
	s.sub = bus.On(s.bus, bus.TopicFocusTimerTick, s.onTick)
}

func (s *BreakScheduler) onTick(state types.FocusTimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.pending != nil {
		return
	}
	// Counters restart at day rollover
	if state.GoalSeconds < s.sinceGoal {
		s.sinceGoal = 0
	}
	if time.Duration(state.GoalSeconds-s.sinceGoal)*time.Second < s.cfg.Interval {
		return
	}

	s.sinceGoal = state.GoalSeconds
	s.pending = time.AfterFunc(s.cfg.Duration, s.fire)
	s.log.Debug().Int("goal_seconds", state.GoalSeconds).Dur("in", s.cfg.Duration).Msg("break timer started")
}

func (s *BreakScheduler) fire() {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.scheduledAt = s.clock.Now()
	at := s.scheduledAt
	s.mu.Unlock()

	s.log.Info().Msg("break scheduled")
	s.bus.Publish(bus.TopicBreakScheduled, types.NewDerivedEvent(types.DerivedBreakScheduled, at, map[string]any{
		"message":  "Time for a break",
		"duration": s.cfg.Duration.String(),
	}))
}

// TrackCompliance records whether the user took the last scheduled break
func (s *BreakScheduler) TrackCompliance(accepted bool) {
	now := s.clock.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if !accepted {
		s.skipped++
	}
	skipped := s.skipped
	s.mu.Unlock()

	if accepted {
		s.bus.Publish(bus.TopicBreakAccepted, types.NewDerivedEvent(types.DerivedBreakAccepted, now, nil))
	} else {
		s.bus.Publish(bus.TopicBreakDismissed, types.NewDerivedEvent(types.DerivedBreakDismissed, now, nil))
		s.bus.Publish(bus.TopicSkippedBreak, types.NewDerivedEvent(types.DerivedSkippedBreak, now, map[string]any{
			"skippedBreaks": skipped,
		}))
	}
	s.bus.Publish(bus.TopicBreakCompliance, types.NewDerivedEvent(types.DerivedComplianceTracking, now, map[string]any{
		"accepted":      accepted,
		"skippedBreaks": skipped,
	}))
}

// Skipped returns the number of dismissed breaks
func (s *BreakScheduler) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Pending reports whether a break timer is running
func (s *BreakScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Stop cancels any pending break. Nothing is published after it returns.
func (s *BreakScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()

	s.bus.Unsubscribe(s.sub)

	// Wait out a fire that already passed its stopped check
	s.fireMu.Lock()
	s.fireMu.Unlock()
}
