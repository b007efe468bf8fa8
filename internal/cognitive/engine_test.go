package cognitive

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/types"
	"github.com/vthunder/focuswatch/internal/window"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)

// collector records derived events per topic
type collector struct {
	mu     sync.Mutex
	events map[bus.Topic][]types.DerivedEvent
}

func collect(b *bus.Bus, topics ...bus.Topic) *collector {
	c := &collector{events: make(map[bus.Topic][]types.DerivedEvent)}
	for _, topic := range topics {
		topic := topic
		bus.On(b, topic, func(ev types.DerivedEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events[topic] = append(c.events[topic], ev)
		})
	}
	return c
}

func (c *collector) get(topic bus.Topic) []types.DerivedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.DerivedEvent(nil), c.events[topic]...)
}

func newEngine(t *testing.T) (*Engine, *bus.Bus, *clock.Fake) {
	t.Helper()
	b := bus.New(logging.Nop())
	clk := clock.NewFake(t0)
	e, err := New(DefaultConfig(), b, clk, logging.Nop())
	require.NoError(t, err)
	e.Start()
	t.Cleanup(e.Stop)
	return e, b, clk
}

func event(kind types.FocusEventKind, at time.Time) types.FocusEvent {
	state := types.StateWorkFocus
	if kind == types.KindIdleChanged {
		state = types.StateBreakLeisure
	}
	return types.FocusEvent{EventID: types.NewEventID(), Kind: kind, State: state, ApplicationName: "editor", Timestamp: at}
}

func TestNew_InvalidCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowCapacity = -1
	_, err := New(cfg, bus.New(logging.Nop()), nil, logging.Nop())
	assert.ErrorIs(t, err, window.ErrInvalidCapacity)
}

func TestEngine_NeuralPatternDisruptor(t *testing.T) {
	_, b, _ := newEngine(t)
	c := collect(b, bus.TopicNeuralPatternDisruptor)

	for i := 0; i < 5; i++ {
		b.Publish(bus.TopicFocusChanged, event(types.KindFocusChanged, t0.Add(time.Duration(i)*time.Minute)))
	}
	assert.Empty(t, c.get(bus.TopicNeuralPatternDisruptor))

	b.Publish(bus.TopicFocusChanged, event(types.KindFocusChanged, t0.Add(5*time.Minute)))
	got := c.get(bus.TopicNeuralPatternDisruptor)
	require.Len(t, got, 1)
	assert.Equal(t, 6, got[0].Metadata["distractionCount"])

	// keeps firing while the window stays above the threshold
	b.Publish(bus.TopicFocusChanged, event(types.KindFocusChanged, t0.Add(6*time.Minute)))
	got = c.get(bus.TopicNeuralPatternDisruptor)
	require.Len(t, got, 2)
	assert.Equal(t, 7, got[1].Metadata["distractionCount"])
}

func TestEngine_SparsePatternsCountWindowOccupancy(t *testing.T) {
	e, b, clk := newEngine(t)
	c := collect(b, bus.TopicNeuralPatternDisruptor, bus.TopicMicroBreak)

	for i := 0; i < 6; i++ {
		b.Publish(bus.TopicFocusChanged, event(types.KindFocusChanged, t0.Add(time.Duration(i)*20*time.Minute)))
	}
	for i := 0; i < 11; i++ {
		b.Publish(bus.TopicIdleChanged, event(types.KindIdleChanged, t0.Add(time.Duration(i)*time.Hour)))
	}

	assert.Len(t, c.get(bus.TopicNeuralPatternDisruptor), 1)
	assert.Len(t, c.get(bus.TopicMicroBreak), 1)
	assert.Equal(t, Load{AlertFrequency: 0.5, UIDensity: 0.5}, e.Load())

	clk.Set(t0.Add(48 * time.Hour))
	assert.Equal(t, Load{AlertFrequency: 0.5, UIDensity: 0.5}, e.AdjustCognitiveLoad())
}

func TestEngine_MicroBreakAndLoad(t *testing.T) {
	e, b, _ := newEngine(t)
	c := collect(b, bus.TopicMicroBreak)

	for i := 0; i < 10; i++ {
		b.Publish(bus.TopicIdleChanged, event(types.KindIdleChanged, t0.Add(time.Duration(i)*time.Minute)))
	}
	assert.Empty(t, c.get(bus.TopicMicroBreak))
	assert.Equal(t, Load{AlertFrequency: 1, UIDensity: 1}, e.Load())
	assert.Equal(t, Load{AlertFrequency: 1, UIDensity: 1}, e.AdjustCognitiveLoad())

	b.Publish(bus.TopicIdleChanged, event(types.KindIdleChanged, t0.Add(10*time.Minute)))
	got := c.get(bus.TopicMicroBreak)
	require.Len(t, got, 1)
	assert.Equal(t, 11, got[0].Metadata["deepWorkCount"])
	assert.Equal(t, Load{AlertFrequency: 0.5, UIDensity: 0.5}, e.Load())
	assert.Equal(t, Load{AlertFrequency: 0.5, UIDensity: 0.5}, e.AdjustCognitiveLoad())

	b.Publish(bus.TopicIdleChanged, event(types.KindIdleChanged, t0.Add(11*time.Minute)))
	assert.Len(t, c.get(bus.TopicMicroBreak), 2)
}

func TestEngine_LoadIsBoundedByWindowCapacity(t *testing.T) {
	b := bus.New(logging.Nop())
	cfg := DefaultConfig()
	cfg.WindowCapacity = 5
	e, err := New(cfg, b, clock.NewFake(t0), logging.Nop())
	require.NoError(t, err)
	e.Start()
	t.Cleanup(e.Stop)
	c := collect(b, bus.TopicMicroBreak)

	for i := 0; i < 20; i++ {
		b.Publish(bus.TopicIdleChanged, event(types.KindIdleChanged, t0.Add(time.Duration(i)*time.Minute)))
	}

	assert.Empty(t, c.get(bus.TopicMicroBreak))
	assert.Equal(t, Load{AlertFrequency: 1, UIDensity: 1}, e.AdjustCognitiveLoad())
}

func TestEngine_TrackCompliance(t *testing.T) {
	e, b, _ := newEngine(t)
	c := collect(b, bus.TopicComplianceTracking)

	e.TrackCompliance("MicroBreak", true)

	got := c.get(bus.TopicComplianceTracking)
	require.Len(t, got, 1)
	assert.Equal(t, types.DerivedComplianceTracking, got[0].Kind)
	assert.Equal(t, "MicroBreak", got[0].Metadata["prompt"])
	assert.Equal(t, true, got[0].Metadata["accepted"])
}
