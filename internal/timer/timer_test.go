package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/types"
)

type memSink struct {
	mu     sync.Mutex
	totals []types.TimerTotals
	err    error
}

func (s *memSink) InsertTimerTotals(_ context.Context, t types.TimerTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.totals = append(s.totals, t)
	return nil
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)

func newManager(cfg Config) (*Manager, *clock.Fake, *memSink) {
	clk := clock.NewFake(t0)
	sink := &memSink{}
	return New(cfg, clk, sink, nil, logging.Nop()), clk, sink
}

func ticks(m *Manager, n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

func TestManager_MutualExclusion(t *testing.T) {
	m, _, _ := newManager(DefaultConfig())

	ticks(m, 3)
	assert.Equal(t, 0, m.State().GoalSeconds)
	assert.Equal(t, 0, m.State().NonGoalSeconds)

	m.StartGoal()
	ticks(m, 5)
	m.StartNonGoal()
	ticks(m, 2)

	s := m.State()
	assert.Equal(t, types.TimerNonGoal, s.CurrentMode)
	assert.Equal(t, 5, s.GoalSeconds)
	assert.Equal(t, 2, s.NonGoalSeconds)

	m.PauseGoal() // not running, no effect
	assert.Equal(t, types.TimerNonGoal, m.State().CurrentMode)

	m.PauseNonGoal()
	ticks(m, 4)
	assert.Equal(t, 5, m.State().GoalSeconds)
	assert.Equal(t, 2, m.State().NonGoalSeconds)
}

func TestManager_GoalReward(t *testing.T) {
	m, _, _ := newManager(Config{RewardThreshold: 10 * time.Second})

	var rewards []int
	m.SetOnGoalReward(func(goal int) { rewards = append(rewards, goal) })

	m.StartGoal()
	ticks(m, 25)

	assert.Equal(t, []int{10, 20}, rewards)
	assert.Equal(t, 5, m.GoalRun())
}

func TestManager_PolicyPausePreservesRun(t *testing.T) {
	m, _, _ := newManager(Config{RewardThreshold: 10 * time.Second, Policy: PolicyPause})

	var rewards int
	m.SetOnGoalReward(func(int) { rewards++ })

	m.StartGoal()
	ticks(m, 6)
	m.Pause()
	ticks(m, 3)
	m.StartGoal()
	ticks(m, 4)

	assert.Equal(t, 1, rewards)
}

func TestManager_PolicyResetClearsRun(t *testing.T) {
	m, _, _ := newManager(Config{RewardThreshold: 10 * time.Second, Policy: PolicyReset})

	var rewards int
	m.SetOnGoalReward(func(int) { rewards++ })

	m.StartGoal()
	ticks(m, 6)
	m.PauseGoal()
	assert.Equal(t, 0, m.GoalRun())
	m.StartGoal()
	ticks(m, 4)

	assert.Equal(t, 0, rewards)
	assert.Equal(t, 10, m.State().GoalSeconds)
}

func TestManager_DayRollover(t *testing.T) {
	m, clk, sink := newManager(DefaultConfig())

	m.StartGoal()
	ticks(m, 7)
	m.StartNonGoal()
	ticks(m, 3)

	clk.Set(t0.Add(24 * time.Hour))
	m.Tick()

	require.Len(t, sink.totals, 1)
	assert.Equal(t, types.TimerTotals{
		Date:                t0.Format(dateLayout),
		GoalFocusSeconds:    7,
		NonGoalFocusSeconds: 3,
	}, sink.totals[0])

	s := m.State()
	assert.Equal(t, clk.Now().Format(dateLayout), s.Date)
	assert.Equal(t, 0, s.GoalSeconds)
	assert.Equal(t, 1, s.NonGoalSeconds)
}

func TestManager_FlushFailureNotFatal(t *testing.T) {
	m, clk, sink := newManager(DefaultConfig())
	sink.err = errors.New("disk full")

	m.StartGoal()
	ticks(m, 2)
	clk.Set(t0.Add(24 * time.Hour))
	assert.NotPanics(t, func() { m.Tick() })
	assert.Equal(t, 1, m.State().GoalSeconds)

	assert.Error(t, m.FlushDay(context.Background()))
}

func TestManager_FlushDay(t *testing.T) {
	m, _, sink := newManager(DefaultConfig())
	m.StartGoal()
	ticks(m, 4)

	require.NoError(t, m.FlushDay(context.Background()))
	require.Len(t, sink.totals, 1)
	assert.Equal(t, 4, sink.totals[0].GoalFocusSeconds)
	assert.Equal(t, 4, m.State().GoalSeconds, "flush does not reset")
}

func TestManager_PublishesTick(t *testing.T) {
	clk := clock.NewFake(t0)
	b := bus.New(logging.Nop())
	m := New(DefaultConfig(), clk, nil, b, logging.Nop())

	var got []types.FocusTimerState
	bus.On(b, bus.TopicFocusTimerTick, func(s types.FocusTimerState) { got = append(got, s) })

	m.StartGoal()
	ticks(m, 2)

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].GoalSeconds)
}

func TestManager_StartStop(t *testing.T) {
	clk := clock.NewFake(t0)
	m := New(Config{TickInterval: time.Millisecond}, clk, nil, nil, logging.Nop())
	m.StartGoal()

	m.Start()
	m.Start()
	require.Eventually(t, func() bool { return m.State().GoalSeconds > 0 }, time.Second, time.Millisecond)

	m.Stop()
	m.Stop()
	after := m.State().GoalSeconds
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, m.State().GoalSeconds)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPause, p)

	p, err = ParsePolicy("reset")
	require.NoError(t, err)
	assert.Equal(t, PolicyReset, p)

	_, err = ParsePolicy("later")
	assert.Error(t, err)
}
