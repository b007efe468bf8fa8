// Package config loads focuswatch settings from <state>/focuswatch.yaml and
// the environment, then validates them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional config file inside the state directory
const FileName = "focuswatch.yaml"

// Config holds all daemon settings
type Config struct {
	StatePath string `yaml:"-"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	LogJSON  bool   `yaml:"log_json"`

	Focus     FocusConfig     `yaml:"focus"`
	Timer     TimerConfig     `yaml:"timer"`
	Behavior  BehaviorConfig  `yaml:"behavior"`
	Cognitive CognitiveConfig `yaml:"cognitive"`
	Inference InferenceConfig `yaml:"inference"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Discord   DiscordConfig   `yaml:"discord"`
	OTEL      OTELConfig      `yaml:"otel"`

	Retention time.Duration `yaml:"retention"` // focus records older than this are cleaned up on start; 0 keeps all
}

// FocusConfig tunes the state machine and activity poller
type FocusConfig struct {
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	CheckInterval time.Duration `yaml:"check_interval"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// TimerConfig tunes the goal focus timer
type TimerConfig struct {
	RewardThreshold time.Duration `yaml:"reward_threshold"`
	Policy          string        `yaml:"interruption_policy"` // pause or reset
}

// BehaviorConfig tunes the behavioral analytics rules
type BehaviorConfig struct {
	WindowCapacity    int           `yaml:"window_capacity"`
	SustainedLookback time.Duration `yaml:"sustained_lookback"`
	SustainedDensity  int           `yaml:"sustained_density"`
	SwitchLookback    time.Duration `yaml:"switch_lookback"`
	SwitchThreshold   int           `yaml:"switch_threshold"`
	NonGoalApps       []string      `yaml:"non_goal_apps"`
}

// CognitiveConfig tunes pattern detection and breaks
type CognitiveConfig struct {
	WindowCapacity       int           `yaml:"window_capacity"`
	DistractionThreshold int           `yaml:"distraction_threshold"`
	DeepWorkThreshold    int           `yaml:"deep_work_threshold"`
	BreakInterval        time.Duration `yaml:"break_interval"`
	BreakDuration        time.Duration `yaml:"break_duration"`
}

// InferenceConfig tunes the distraction predictor
type InferenceConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// RecorderConfig tunes persistence buffering
type RecorderConfig struct {
	MaxPending    int           `yaml:"max_pending"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DiscordConfig enables the Discord notifier when Token is set
type DiscordConfig struct {
	Token     string `yaml:"-"` // env only
	ChannelID string `yaml:"channel_id"`
}

// OTELConfig enables metrics export when Endpoint is set
type OTELConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		StatePath: "state",
		LogLevel:  "info",
		Focus: FocusConfig{
			IdleThreshold: 300 * time.Second,
			CheckInterval: time.Second,
			PollInterval:  time.Second,
		},
		Timer: TimerConfig{
			RewardThreshold: 1500 * time.Second,
			Policy:          "pause",
		},
		Behavior: BehaviorConfig{
			WindowCapacity:    100,
			SustainedLookback: 25 * time.Minute,
			SustainedDensity:  5,
			SwitchLookback:    5 * time.Minute,
			SwitchThreshold:   3,
		},
		Cognitive: CognitiveConfig{
			WindowCapacity:       100,
			DistractionThreshold: 5,
			DeepWorkThreshold:    10,
			BreakInterval:        50 * time.Minute,
			BreakDuration:        5 * time.Minute,
		},
		Inference: InferenceConfig{
			Enabled:   true,
			QueueSize: 64,
		},
		Recorder: RecorderConfig{
			MaxPending:    1000,
			FlushInterval: 2 * time.Second,
		},
	}
}

// Load builds the config for statePath: defaults, then the YAML file when
// present, then environment overrides. The result is validated.
func Load(statePath string) (Config, error) {
	cfg := Default()
	if statePath != "" {
		cfg.StatePath = statePath
	}

	path := filepath.Join(cfg.StatePath, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = envStr("FOCUSWATCH_LOG_LEVEL", c.LogLevel)
	c.Timer.Policy = envStr("FOCUSWATCH_INTERRUPTION_POLICY", c.Timer.Policy)
	c.Discord.Token = envStr("DISCORD_TOKEN", c.Discord.Token)
	c.Discord.ChannelID = envStr("DISCORD_CHANNEL_ID", c.Discord.ChannelID)
	c.OTEL.Endpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTEL.Endpoint)

	var err error
	if c.Focus.IdleThreshold, err = envDuration("FOCUSWATCH_IDLE_THRESHOLD", c.Focus.IdleThreshold); err != nil {
		return err
	}
	if c.Focus.PollInterval, err = envDuration("FOCUSWATCH_POLL_INTERVAL", c.Focus.PollInterval); err != nil {
		return err
	}
	if c.Retention, err = envDuration("FOCUSWATCH_RETENTION", c.Retention); err != nil {
		return err
	}
	if c.LogJSON, err = envBool("FOCUSWATCH_LOG_JSON", c.LogJSON); err != nil {
		return err
	}
	if c.OTEL.Insecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", c.OTEL.Insecure); err != nil {
		return err
	}
	return nil
}

// ValidationError names the offending setting
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Validate rejects settings the components cannot run with
func (c Config) Validate() error {
	var errs []error
	positive := func(field string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, &ValidationError{Field: field, Reason: "must be positive"})
		}
	}
	atLeastOne := func(field string, n int) {
		if n <= 0 {
			errs = append(errs, &ValidationError{Field: field, Reason: "must be at least 1"})
		}
	}

	if c.StatePath == "" {
		errs = append(errs, &ValidationError{Field: "state_path", Reason: "is required"})
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{Field: "log_level", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)})
	}

	positive("focus.idle_threshold", c.Focus.IdleThreshold)
	positive("focus.check_interval", c.Focus.CheckInterval)
	positive("focus.poll_interval", c.Focus.PollInterval)

	positive("timer.reward_threshold", c.Timer.RewardThreshold)
	switch c.Timer.Policy {
	case "pause", "reset":
	default:
		errs = append(errs, &ValidationError{Field: "timer.interruption_policy", Reason: fmt.Sprintf("unknown policy %q", c.Timer.Policy)})
	}

	atLeastOne("behavior.window_capacity", c.Behavior.WindowCapacity)
	positive("behavior.sustained_lookback", c.Behavior.SustainedLookback)
	atLeastOne("behavior.sustained_density", c.Behavior.SustainedDensity)
	positive("behavior.switch_lookback", c.Behavior.SwitchLookback)
	atLeastOne("behavior.switch_threshold", c.Behavior.SwitchThreshold)

	atLeastOne("cognitive.window_capacity", c.Cognitive.WindowCapacity)
	positive("cognitive.break_interval", c.Cognitive.BreakInterval)
	positive("cognitive.break_duration", c.Cognitive.BreakDuration)

	if c.Retention < 0 {
		errs = append(errs, &ValidationError{Field: "retention", Reason: "must not be negative"})
	}
	if c.Discord.Token != "" && c.Discord.ChannelID == "" {
		errs = append(errs, &ValidationError{Field: "discord.channel_id", Reason: "is required when DISCORD_TOKEN is set"})
	}
	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
