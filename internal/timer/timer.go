// Package timer tracks daily goal and non-goal focus time.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/types"
)

const dateLayout = "2006-01-02"

// Policy decides what a pause does to the running goal reward streak
type Policy string

const (
	PolicyPause Policy = "pause" // streak survives the pause
	PolicyReset Policy = "reset" // streak restarts from zero
)

// ParsePolicy validates a configured policy name
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyPause, PolicyReset:
		return Policy(s), nil
	case "":
		return PolicyPause, nil
	}
	return "", fmt.Errorf("timer: unknown interruption policy %q", s)
}

// TotalsSink persists a finished (or in-progress) day
type TotalsSink interface {
	InsertTimerTotals(ctx context.Context, totals types.TimerTotals) error
}

// Publisher is the part of the bus the manager needs
type Publisher interface {
	Publish(topic bus.Topic, payload any)
}

// Config holds timer tuning
type Config struct {
	RewardThreshold time.Duration // goal run that earns a reward (default 25m)
	Policy          Policy
	TickInterval    time.Duration // default 1s
}

// DefaultConfig returns the standard timer settings
func DefaultConfig() Config {
	return Config{
		RewardThreshold: 1500 * time.Second,
		Policy:          PolicyPause,
		TickInterval:    time.Second,
	}
}

// Manager owns the FocusTimerState. Only the counter selected by the
// current mode advances on a tick.
type Manager struct {
	mu       sync.Mutex
	state    types.FocusTimerState
	goalRun  int // consecutive goal seconds toward the next reward
	onReward func(goalSeconds int)

	cfg   Config
	clock clock.Clock
	sink  TotalsSink
	pub   Publisher
	log   zerolog.Logger

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a manager for the current day with both timers stopped
func New(cfg Config, clk clock.Clock, sink TotalsSink, pub Publisher, log zerolog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.RewardThreshold <= 0 {
		cfg.RewardThreshold = def.RewardThreshold
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		state: types.FocusTimerState{
			CurrentMode: types.TimerNone,
			Date:        clk.Now().Format(dateLayout),
		},
		cfg:   cfg,
		clock: clk,
		sink:  sink,
		pub:   pub,
		log:   log,
	}
}

// SetOnGoalReward registers the callback fired when a goal run reaches
// the reward threshold. It runs on the ticking goroutine.
func (m *Manager) SetOnGoalReward(fn func(goalSeconds int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReward = fn
}

// StartGoal switches timing to the goal counter
func (m *Manager) StartGoal() {
	m.setMode(types.TimerGoal)
}

// StartNonGoal switches timing to the non-goal counter
func (m *Manager) StartNonGoal() {
	m.setMode(types.TimerNonGoal)
}

// PauseGoal stops goal timing if it is running
func (m *Manager) PauseGoal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.CurrentMode == types.TimerGoal {
		m.switchLocked(types.TimerNone)
	}
}

// PauseNonGoal stops non-goal timing if it is running
func (m *Manager) PauseNonGoal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.CurrentMode == types.TimerNonGoal {
		m.switchLocked(types.TimerNone)
	}
}

// Pause stops whichever timer is running
func (m *Manager) Pause() {
	m.setMode(types.TimerNone)
}

func (m *Manager) setMode(mode types.TimerMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchLocked(mode)
}

func (m *Manager) switchLocked(mode types.TimerMode) {
	if m.state.CurrentMode == mode {
		return
	}
	if m.state.CurrentMode == types.TimerGoal && m.cfg.Policy == PolicyReset {
		m.goalRun = 0
	}
	m.state.CurrentMode = mode
}

// State returns a snapshot of the counters
func (m *Manager) State() types.FocusTimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GoalRun returns the consecutive goal seconds toward the next reward
func (m *Manager) GoalRun() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.goalRun
}

// Tick advances the active counter by one second
func (m *Manager) Tick() {
	now := m.clock.Now()

	m.mu.Lock()
	finished, rolled := m.checkDayRollover(now)

	rewarded := false
	switch m.state.CurrentMode {
	case types.TimerGoal:
		m.state.GoalSeconds++
		m.goalRun++
		if m.goalRun >= int(m.cfg.RewardThreshold/time.Second) {
			m.goalRun = 0
			rewarded = true
		}
	case types.TimerNonGoal:
		m.state.NonGoalSeconds++
	}
	snap := m.state
	onReward := m.onReward
	m.mu.Unlock()

	if rolled {
		m.flush(finished)
	}
	if m.pub != nil {
		m.pub.Publish(bus.TopicFocusTimerTick, snap)
	}
	if rewarded && onReward != nil {
		m.log.Info().Int("goal_seconds", snap.GoalSeconds).Msg("goal focus reward")
		onReward(snap.GoalSeconds)
	}
}

// checkDayRollover resets counters on a new day and returns the finished
// day's totals. Caller holds m.mu.
func (m *Manager) checkDayRollover(now time.Time) (types.TimerTotals, bool) {
	today := now.Format(dateLayout)
	if today == m.state.Date {
		return types.TimerTotals{}, false
	}
	finished := totalsOf(m.state)
	m.state.GoalSeconds = 0
	m.state.NonGoalSeconds = 0
	m.state.Date = today
	m.goalRun = 0
	return finished, true
}

// FlushDay persists the current day's totals without resetting them
func (m *Manager) FlushDay(ctx context.Context) error {
	totals := totalsOf(m.State())
	if m.sink == nil {
		return nil
	}
	if err := m.sink.InsertTimerTotals(ctx, totals); err != nil {
		return fmt.Errorf("flush timer totals for %s: %w", totals.Date, err)
	}
	return nil
}

func (m *Manager) flush(totals types.TimerTotals) {
	if m.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.sink.InsertTimerTotals(ctx, totals); err != nil {
		m.log.Error().Err(err).Str("date", totals.Date).Msg("failed to store daily totals")
		return
	}
	m.log.Info().
		Str("date", totals.Date).
		Int("goal_seconds", totals.GoalFocusSeconds).
		Int("non_goal_seconds", totals.NonGoalFocusSeconds).
		Msg("stored daily totals")
}

func totalsOf(s types.FocusTimerState) types.TimerTotals {
	return types.TimerTotals{
		Date:                s.Date,
		GoalFocusSeconds:    s.GoalSeconds,
		NonGoalFocusSeconds: s.NonGoalSeconds,
	}
}

// Start begins ticking once per TickInterval
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.tickLoop(m.stopChan, m.done)
	m.log.Info().Dur("reward_threshold", m.cfg.RewardThreshold).Str("policy", string(m.cfg.Policy)).Msg("started")
}

// Stop halts ticking. Returns after the loop has exited; safe to repeat.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	close(m.stopChan)
	<-m.done
	m.running = false
}

func (m *Manager) tickLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			m.Tick()
		}
	}
}
