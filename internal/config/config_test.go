package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.StatePath)
	assert.Equal(t, 300*time.Second, cfg.Focus.IdleThreshold)
	assert.Equal(t, 1500*time.Second, cfg.Timer.RewardThreshold)
	assert.Equal(t, "pause", cfg.Timer.Policy)
	assert.Equal(t, 100, cfg.Behavior.WindowCapacity)
	assert.Equal(t, 50*time.Minute, cfg.Cognitive.BreakInterval)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	yml := `
log_level: debug
focus:
  idle_threshold: 2m
timer:
  interruption_policy: reset
behavior:
  sustained_density: 7
  non_goal_apps: ["youtube", "reddit"]
retention: 720h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.Focus.IdleThreshold)
	assert.Equal(t, time.Second, cfg.Focus.CheckInterval, "unset keys keep defaults")
	assert.Equal(t, "reset", cfg.Timer.Policy)
	assert.Equal(t, 7, cfg.Behavior.SustainedDensity)
	assert.Equal(t, []string{"youtube", "reddit"}, cfg.Behavior.NonGoalApps)
	assert.Equal(t, 720*time.Hour, cfg.Retention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOCUSWATCH_IDLE_THRESHOLD", "90s")
	t.Setenv("FOCUSWATCH_INTERRUPTION_POLICY", "reset")
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("DISCORD_CHANNEL_ID", "123")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Focus.IdleThreshold)
	assert.Equal(t, "reset", cfg.Timer.Policy)
	assert.Equal(t, "tok", cfg.Discord.Token)
	assert.Equal(t, "123", cfg.Discord.ChannelID)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("FOCUSWATCH_POLL_INTERVAL", "soon")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("focus: ["), 0644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Behavior.WindowCapacity = 0
	cfg.Timer.Policy = "sometimes"
	cfg.Focus.IdleThreshold = -time.Second
	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "behavior.window_capacity")
	assert.Contains(t, err.Error(), "timer.interruption_policy")
	assert.Contains(t, err.Error(), "focus.idle_threshold")
}

func TestValidate_DiscordNeedsChannel(t *testing.T) {
	cfg := Default()
	cfg.Discord.Token = "tok"
	assert.ErrorContains(t, cfg.Validate(), "discord.channel_id")
}
