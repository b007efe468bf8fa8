package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vthunder/focuswatch/internal/activity"
	"github.com/vthunder/focuswatch/internal/behavior"
	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/cognitive"
	"github.com/vthunder/focuswatch/internal/config"
	"github.com/vthunder/focuswatch/internal/effectors"
	"github.com/vthunder/focuswatch/internal/focus"
	"github.com/vthunder/focuswatch/internal/inference"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/recorder"
	"github.com/vthunder/focuswatch/internal/store"
	"github.com/vthunder/focuswatch/internal/telemetry"
	"github.com/vthunder/focuswatch/internal/timer"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file (optional - won't error if missing)
	envLoaded := godotenv.Load() == nil

	cfg, err := config.Load(os.Getenv("FOCUSWATCH_STATE_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logging.Setup(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if envLoaded {
		logging.Info("config", "Loaded .env file")
	}
	log.Info().Str("version", version).Str("state", cfg.StatePath).Msg("focuswatch starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("focuswatch failed")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTEL.Endpoint, "focuswatch", version, cfg.OTEL.Insecure)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	clk := clock.System{}

	if cfg.Retention > 0 {
		n, err := db.CleanupFocusRecords(ctx, clk.Now().Add(-cfg.Retention))
		if err != nil {
			log.Warn().Err(err).Msg("retention cleanup failed")
		} else if n > 0 {
			log.Info().Int64("removed", n).Dur("retention", cfg.Retention).Msg("cleaned up old focus records")
		}
	}

	b := bus.New(logging.For("bus"))

	rec := recorder.New(recorder.Config{
		MaxPending:    cfg.Recorder.MaxPending,
		FlushInterval: cfg.Recorder.FlushInterval,
	}, db, b, logging.For("recorder"))

	policy, err := timer.ParsePolicy(cfg.Timer.Policy)
	if err != nil {
		return err
	}
	timers := timer.New(timer.Config{
		RewardThreshold: cfg.Timer.RewardThreshold,
		Policy:          policy,
		TickInterval:    time.Second,
	}, clk, db, b, logging.For("timer"))

	machine := focus.New(focus.Config{
		IdleThreshold: cfg.Focus.IdleThreshold,
		CheckInterval: cfg.Focus.CheckInterval,
	}, clk, b, logging.For("focus"))

	behaviorEngine, err := behavior.New(behavior.Config{
		WindowCapacity:    cfg.Behavior.WindowCapacity,
		SustainedLookback: cfg.Behavior.SustainedLookback,
		SustainedDensity:  cfg.Behavior.SustainedDensity,
		SwitchLookback:    cfg.Behavior.SwitchLookback,
		SwitchThreshold:   cfg.Behavior.SwitchThreshold,
		NonGoalApps:       cfg.Behavior.NonGoalApps,
	}, b, timers, clk, logging.For("behavior"))
	if err != nil {
		return fmt.Errorf("behavior engine: %w", err)
	}

	cognitiveEngine, err := cognitive.New(cognitive.Config{
		WindowCapacity:       cfg.Cognitive.WindowCapacity,
		DistractionThreshold: cfg.Cognitive.DistractionThreshold,
		DeepWorkThreshold:    cfg.Cognitive.DeepWorkThreshold,
	}, b, clk, logging.For("cognitive"))
	if err != nil {
		return fmt.Errorf("cognitive engine: %w", err)
	}

	breaks := cognitive.NewBreakScheduler(cognitive.BreakConfig{
		Interval: cfg.Cognitive.BreakInterval,
		Duration: cfg.Cognitive.BreakDuration,
	}, b, clk, logging.For("breaks"))

	var adapter *inference.Adapter
	if cfg.Inference.Enabled {
		adapter, err = inference.New(inference.Config{QueueSize: cfg.Inference.QueueSize},
			inference.NewFileBackend(cfg.StatePath), b, logging.For("inference"))
		if err != nil {
			return fmt.Errorf("inference: %w", err)
		}
		m := adapter.LoadModel(ctx)
		log.Info().Str("model", m.Version()).Msg("distraction model loaded")
	}

	var sender effectors.Sender
	if cfg.Discord.Token != "" {
		discord, err := effectors.NewDiscordSender(effectors.DiscordConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
		}, breakResponses{breaks: breaks, engine: cognitiveEngine}, logging.For("discord"))
		if err != nil {
			return err
		}
		if err := discord.Open(); err != nil {
			return err
		}
		defer discord.Close()
		sender = discord
	} else {
		log.Info().Msg("DISCORD_TOKEN not set, notifications go to the log")
		sender = effectors.NewLogSender(logging.For("notify"))
	}
	notifier := effectors.NewNotifier(b, sender, cognitiveEngine, logging.For("notify"))

	// Consumers subscribe before the sources start publishing
	rec.Start(context.Background())
	behaviorEngine.Start()
	cognitiveEngine.Start()
	breaks.Start()
	if adapter != nil {
		adapter.Start()
	}
	notifier.Start()
	timers.Start()
	machine.Start()

	g, gctx := errgroup.WithContext(ctx)
	probe, err := activity.NewProbe()
	if err != nil {
		log.Warn().Err(err).Msg("no activity probe, focus tracking limited to idle checks")
	} else {
		poller := activity.NewPoller(probe, machine, cfg.Focus.PollInterval, clk, logging.For("activity"))
		g.Go(func() error { return poller.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	log.Info().Msg("all subsystems started, press Ctrl+C to stop")
	runErr := g.Wait()

	log.Info().Msg("shutting down")
	machine.Stop()
	timers.Stop()
	breaks.Stop()
	notifier.Stop()
	if adapter != nil {
		adapter.Stop()
	}
	cognitiveEngine.Stop()
	behaviorEngine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := timers.FlushDay(shutdownCtx); err != nil {
		logging.Error("timer", err, "failed to flush day totals")
	}
	rec.Drain(shutdownCtx)
	stats := rec.Stats()
	logging.Debug("recorder", "drained: %d written, %d dropped, %d failed", stats.Written, stats.Dropped, stats.Failed)
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logging.Warn("telemetry", "shutdown failed: %v", err)
	}
	return runErr
}

// breakResponses reports a break prompt answer to the scheduler and records
// it as general prompt compliance
type breakResponses struct {
	breaks *cognitive.BreakScheduler
	engine *cognitive.Engine
}

func (r breakResponses) TrackCompliance(accepted bool) {
	r.breaks.TrackCompliance(accepted)
	r.engine.TrackCompliance("break", accepted)
}
