package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/types"
)

// fakeRunner answers commands from a table keyed by the joined command line
func fakeRunner(outputs map[string]string) runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		key := strings.Join(append([]string{name}, args...), " ")
		out, ok := outputs[key]
		if !ok {
			return nil, fmt.Errorf("unexpected command %q", key)
		}
		return []byte(out), nil
	}
}

func TestX11Probe_ActiveWindowUsesProcessName(t *testing.T) {
	p := &X11Probe{
		run: fakeRunner(map[string]string{
			"xdotool getwindowfocus getwindowname": "main.go - project\n",
			"xdotool getwindowfocus getwindowpid":  "4242\n",
		}),
		procName: func(_ context.Context, pid int32) (string, error) {
			require.Equal(t, int32(4242), pid)
			return "code", nil
		},
	}

	name, err := p.ActiveWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "code", name)
}

func TestX11Probe_ActiveWindowFallsBackToTitle(t *testing.T) {
	p := &X11Probe{
		run: fakeRunner(map[string]string{
			"xdotool getwindowfocus getwindowname": "Terminal\n",
		}),
		procName: func(context.Context, int32) (string, error) { return "", errors.New("unused") },
	}

	name, err := p.ActiveWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Terminal", name)
}

func TestX11Probe_IdleTime(t *testing.T) {
	p := &X11Probe{run: fakeRunner(map[string]string{"xprintidle": "1534\n"})}
	idle, err := p.IdleTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1534*time.Millisecond, idle)

	p = &X11Probe{run: fakeRunner(map[string]string{"xprintidle": "nope"})}
	_, err = p.IdleTime(context.Background())
	assert.Error(t, err)
}

func TestDarwinProbe(t *testing.T) {
	p := &DarwinProbe{run: fakeRunner(map[string]string{
		"osascript -e " + frontmostScript: "Safari\n",
		"ioreg -c IOHIDSystem":            "| |   \"HIDIdleTime\" = 2500000000\n",
	})}

	name, err := p.ActiveWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Safari", name)

	idle, err := p.IdleTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, idle)
}

type scriptedProbe struct {
	windows []string
	idles   []time.Duration
	err     error
	i       int
}

func (p *scriptedProbe) ActiveWindow(context.Context) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.windows[p.i], nil
}

func (p *scriptedProbe) IdleTime(context.Context) (time.Duration, error) {
	return p.idles[p.i], nil
}

type recordingSink struct {
	samples []types.ActivitySample
	idles   []time.Duration
}

func (s *recordingSink) OnActivitySample(sample types.ActivitySample) {
	s.samples = append(s.samples, sample)
}

func (s *recordingSink) OnIdleReport(idle time.Duration) { s.idles = append(s.idles, idle) }

func TestPoller_EmitsOnChangeOrFreshInput(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(t0)
	probe := &scriptedProbe{
		windows: []string{"code", "code", "code", "firefox"},
		idles:   []time.Duration{0, time.Second, 400 * time.Second, 0},
	}
	sink := &recordingSink{}
	p := NewPoller(probe, sink, time.Second, clk, logging.Nop())

	ctx := context.Background()
	p.Poll(ctx) // first window
	probe.i++
	clk.Advance(time.Second)
	p.Poll(ctx) // same window, idle growing
	probe.i++
	clk.Advance(400 * time.Second)
	p.Poll(ctx) // still idle
	probe.i++
	clk.Advance(time.Second)
	p.Poll(ctx) // new window

	require.Len(t, sink.samples, 2)
	assert.Equal(t, "code", sink.samples[0].ActiveWindow)
	assert.Equal(t, "firefox", sink.samples[1].ActiveWindow)
	assert.Len(t, sink.idles, 4)

	// Input resumes in the same window
	probe.windows = append(probe.windows, "firefox", "firefox")
	probe.idles = append(probe.idles, 300*time.Second, 0)
	probe.i++
	p.Poll(ctx)
	probe.i++
	p.Poll(ctx)
	assert.Len(t, sink.samples, 3)
}

func TestPoller_ProbeErrorSkipsSample(t *testing.T) {
	probe := &scriptedProbe{idles: []time.Duration{time.Second}, err: errors.New("no display")}
	sink := &recordingSink{}
	p := NewPoller(probe, sink, time.Second, nil, logging.Nop())

	p.Poll(context.Background())
	assert.Empty(t, sink.samples)
	assert.Equal(t, []time.Duration{time.Second}, sink.idles)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	probe := &scriptedProbe{windows: []string{"code"}, idles: []time.Duration{0}}
	sink := &recordingSink{}
	p := NewPoller(probe, sink, time.Millisecond, nil, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
