package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/types"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)

type failingBackend struct{ err error }

func (b failingBackend) Load(context.Context) (Model, error) { return nil, b.err }
func (b failingBackend) Save(context.Context, Model) error   { return b.err }

// gatedModel blocks Predict until released
type gatedModel struct {
	version string
	started chan struct{}
	release chan struct{}
}

func (m *gatedModel) Predict(ctx context.Context, f Features) (float64, error) {
	close(m.started)
	<-m.release
	return 0.9, nil
}

func (m *gatedModel) Version() string { return m.version }

func newAdapter(t *testing.T, backend Backend) (*Adapter, *bus.Bus) {
	t.Helper()
	b := bus.New(logging.Nop())
	a, err := New(DefaultConfig(), backend, b, logging.Nop())
	require.NoError(t, err)
	return a, b
}

func TestPredict_NoModel(t *testing.T) {
	a, _ := newAdapter(t, nil)
	_, err := a.Predict(context.Background(), Features{})
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestLoadModel_FallbackIsDeterministic(t *testing.T) {
	f := Features{TimeOfDay: 0.5, CurrentAppUsage: 3, PastContextSwitches: 7}

	var probs []float64
	for _, backend := range []Backend{
		nil,
		failingBackend{err: ErrModelNotFound},
		failingBackend{err: errors.New("corrupt")},
		NewFileBackend(t.TempDir()),
	} {
		a, _ := newAdapter(t, backend)
		m := a.LoadModel(context.Background())
		assert.Equal(t, PlaceholderVersion, m.Version())

		p, err := a.Predict(context.Background(), f)
		require.NoError(t, err)
		probs = append(probs, p)
	}

	for _, p := range probs[1:] {
		assert.Equal(t, probs[0], p)
	}
	assert.Equal(t, Placeholder(), Placeholder())
}

func TestLogisticModel_Range(t *testing.T) {
	m := Placeholder()
	for _, f := range []Features{
		{},
		{TimeOfDay: 1, CurrentAppUsage: 1e6},
		{PastContextSwitches: 1e6},
	} {
		p, err := m.Predict(context.Background(), f)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	p, err := m.Predict(context.Background(), Features{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(dir)

	_, err := backend.Load(context.Background())
	require.ErrorIs(t, err, ErrModelNotFound)

	want := &LogisticModel{Weights: [3]float64{1, 2, 3}, Bias: -1, Ver: "trained-7"}
	require.NoError(t, backend.Save(context.Background(), want))
	assert.FileExists(t, filepath.Join(dir, "models", "distraction.json"))

	got, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	a, _ := newAdapter(t, backend)
	assert.Equal(t, "trained-7", a.LoadModel(context.Background()).Version())
}

func TestFileBackend_Corrupt(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(backend.Path()), 0755))
	require.NoError(t, os.WriteFile(backend.Path(), []byte("{"), 0644))

	_, err := backend.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelNotFound)
}

func TestReplaceModel_InFlightKeepsVersion(t *testing.T) {
	a, _ := newAdapter(t, nil)
	gated := &gatedModel{version: "old", started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, a.ReplaceModel(context.Background(), gated))

	var wg sync.WaitGroup
	var version string
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, version, _ = a.predict(context.Background(), Features{})
	}()

	<-gated.started
	require.NoError(t, a.ReplaceModel(context.Background(), Placeholder()))
	close(gated.release)
	wg.Wait()

	assert.Equal(t, "old", version)
	assert.Equal(t, PlaceholderVersion, a.Model().Version())
}

func TestReplaceModel_SavesBestEffort(t *testing.T) {
	dir := t.TempDir()
	a, _ := newAdapter(t, NewFileBackend(dir))

	require.NoError(t, a.ReplaceModel(context.Background(), &LogisticModel{Ver: "v2"}))
	assert.FileExists(t, filepath.Join(dir, "models", "distraction.json"))

	b, _ := newAdapter(t, failingBackend{err: errors.New("read-only")})
	assert.NoError(t, b.ReplaceModel(context.Background(), Placeholder()))
	assert.Error(t, b.ReplaceModel(context.Background(), nil))
}

func TestAdapter_PublishesProbability(t *testing.T) {
	a, b := newAdapter(t, nil)
	a.LoadModel(context.Background())

	var mu sync.Mutex
	var updates []types.ProbabilityUpdate
	bus.On(b, bus.TopicDistractionProbabilityUpdated, func(u types.ProbabilityUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	a.Start()
	b.Publish(bus.TopicFocusChanged, types.FocusEvent{Kind: types.KindFocusChanged, State: types.StateWorkFocus, ApplicationName: "editor", Timestamp: t0})
	b.Publish(bus.TopicApplicationChanged, types.FocusEvent{Kind: types.KindApplicationChanged, State: types.StateWorkFocus, ApplicationName: "browser", Timestamp: t0.Add(time.Minute)})
	b.Publish(bus.TopicIdleChanged, types.FocusEvent{Kind: types.KindIdleChanged, State: types.StateBreakLeisure, ApplicationName: "browser", Timestamp: t0.Add(10 * time.Minute)})
	a.Stop()
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.Probability, 0.0)
		assert.LessOrEqual(t, u.Probability, 1.0)
		assert.Equal(t, PlaceholderVersion, u.ModelVersion)
	}

	last, ok := a.LastProbability()
	require.True(t, ok)
	assert.Equal(t, updates[2], last)
}

func TestAdapter_NoModelSkipsPublish(t *testing.T) {
	a, b := newAdapter(t, nil)

	published := 0
	b.Subscribe(bus.TopicDistractionProbabilityUpdated, func(any) { published++ })

	a.Start()
	b.Publish(bus.TopicFocusChanged, types.FocusEvent{ApplicationName: "editor", Timestamp: t0})
	a.Stop()

	assert.Equal(t, 0, published)
	_, ok := a.LastProbability()
	assert.False(t, ok)
}

func TestAdapter_ConcurrentStartStopLeavesNoSubscriptions(t *testing.T) {
	for i := 0; i < 50; i++ {
		a, b := newAdapter(t, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Start()
		}()
		go func() {
			defer wg.Done()
			a.Stop()
		}()
		wg.Wait()
		a.Stop()

		assert.Equal(t, 0, b.Subscribers(bus.TopicFocusChanged))
		assert.Equal(t, 0, b.Subscribers(bus.TopicIdleChanged))
		assert.Equal(t, 0, b.Subscribers(bus.TopicApplicationChanged))
	}
}

func TestAdapter_Features(t *testing.T) {
	a, _ := newAdapter(t, nil)

	a.onFocusChanged(types.FocusEvent{ApplicationName: "editor", Timestamp: t0})
	a.onApplicationChanged(types.FocusEvent{ApplicationName: "browser", Timestamp: t0.Add(time.Minute)})
	a.onIdleChanged(types.FocusEvent{ApplicationName: "browser", Timestamp: t0.Add(4 * time.Minute)})

	a.featMu.Lock()
	f := a.featuresAt(t0.Add(4 * time.Minute))
	a.featMu.Unlock()

	assert.InDelta(t, (12*60+4)/1440.0, f.TimeOfDay, 1e-9)
	assert.InDelta(t, 3.0, f.CurrentAppUsage, 1e-9)
	assert.Equal(t, 2.0, f.PastContextSwitches)
}
