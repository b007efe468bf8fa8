package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/state"
	"github.com/vthunder/focuswatch/internal/store"
	"github.com/vthunder/focuswatch/internal/types"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenPath(filepath.Join(t.TempDir(), "focuswatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(state.NewInspector(db, clock.NewFake(now)), "test", logging.Nop()), db
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleRecentFocusRecords(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	for i, app := range []string{"code", "browser", "terminal"} {
		require.NoError(t, db.InsertFocusRecord(ctx, types.FocusRecord{
			Timestamp: now.Add(time.Duration(i) * time.Minute), Application: app,
			State: types.StateWorkFocus, Kind: types.KindFocusChanged,
		}))
	}

	result, err := s.handleRecentFocusRecords(ctx, toolRequest("recent_focus_records", map[string]any{"limit": float64(2)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var records []types.FocusRecord
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "terminal", records[0].Application)
}

func TestHandleRecentBehavioralEvents_FilterByType(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, db.InsertBehavioralEvent(ctx, types.NewDerivedEvent(types.DerivedReward, now, map[string]any{"trigger": "sustained_focus"})))
	require.NoError(t, db.InsertBehavioralEvent(ctx, types.NewDerivedEvent(types.DerivedMicroBreak, now, nil)))

	result, err := s.handleRecentBehavioralEvents(ctx, toolRequest("recent_behavioral_events", map[string]any{"event_type": "RewardEvent"}))
	require.NoError(t, err)

	var events []types.DerivedEvent
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &events))
	require.Len(t, events, 1)
	assert.Equal(t, types.DerivedReward, events[0].Kind)
}

func TestHandleDailyTotals(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, db.InsertTimerTotals(ctx, types.TimerTotals{Date: "2026-03-01", GoalFocusSeconds: 3600, NonGoalFocusSeconds: 600}))

	result, err := s.handleDailyTotals(ctx, toolRequest("daily_totals", nil))
	require.NoError(t, err)

	var totals []types.TimerTotals
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &totals))
	require.Len(t, totals, 1)
	assert.Equal(t, 3600, totals[0].GoalFocusSeconds)
}

func TestHandleContextSwitchStats(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	for _, ago := range []time.Duration{30 * time.Minute, 20 * time.Minute} {
		require.NoError(t, db.InsertFocusRecord(ctx, types.FocusRecord{
			Timestamp: now.Add(-ago), Application: "code", State: types.StateBreakLeisure, Kind: types.KindIdleChanged,
		}))
	}

	result, err := s.handleContextSwitchStats(ctx, toolRequest("context_switch_stats", map[string]any{"period": "1h"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &stats))
	assert.EqualValues(t, 2, stats["frequency"])
	assert.EqualValues(t, 600, stats["mean_interval_seconds"])

	result, err = s.handleContextSwitchStats(ctx, toolRequest("context_switch_stats", map[string]any{"period": "soon"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSummary(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleSummary(context.Background(), toolRequest("focus_summary", nil))
	require.NoError(t, err)
	assert.Contains(t, parseToolText(t, result), `"schema_version"`)
}
