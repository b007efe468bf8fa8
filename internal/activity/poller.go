package activity

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/types"
)

// Sink receives activity signals (the focus state machine)
type Sink interface {
	OnActivitySample(sample types.ActivitySample)
	OnIdleReport(idle time.Duration)
}

// Poller reads the probe on a fixed interval
type Poller struct {
	probe    Probe
	sink     Sink
	interval time.Duration
	clock    clock.Clock
	log      zerolog.Logger

	lastWindow   string
	prevIdle     time.Duration
	havePrevIdle bool
}

// NewPoller creates a poller; interval defaults to 1s
func NewPoller(probe Probe, sink Sink, interval time.Duration, clk clock.Clock, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Poller{probe: probe, sink: sink, interval: interval, clock: clk, log: log}
}

// Run polls until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Msg("polling activity")
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll takes one reading. A sample is emitted when the active window
// changes or new input arrived since the previous poll; the idle time is
// reported on every poll. Probe errors skip the affected signal.
func (p *Poller) Poll(ctx context.Context) {
	now := p.clock.Now()

	idle, idleErr := p.probe.IdleTime(ctx)
	if idleErr != nil {
		p.log.Debug().Err(idleErr).Msg("idle probe failed")
	}
	freshInput := idleErr == nil && p.havePrevIdle && idle < p.prevIdle

	window, err := p.probe.ActiveWindow(ctx)
	switch {
	case err != nil:
		p.log.Debug().Err(err).Msg("active window probe failed")
	case window == "":
	case window != p.lastWindow || freshInput:
		p.lastWindow = window
		at := now
		if idleErr == nil {
			at = now.Add(-idle)
		}
		p.sink.OnActivitySample(types.ActivitySample{ActiveWindow: window, ObservedAt: at})
	}

	if idleErr != nil {
		return
	}
	p.prevIdle = idle
	p.havePrevIdle = true
	p.sink.OnIdleReport(idle)
}
