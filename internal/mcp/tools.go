package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	readOnly := []mcplib.ToolOption{
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
		mcplib.WithOpenWorldHintAnnotation(false),
	}
	tool := func(name, description string, opts ...mcplib.ToolOption) mcplib.Tool {
		all := append([]mcplib.ToolOption{mcplib.WithDescription(description)}, readOnly...)
		return mcplib.NewTool(name, append(all, opts...)...)
	}
	limit := func(def float64) mcplib.ToolOption {
		return mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of rows to return"),
			mcplib.Min(1),
			mcplib.Max(1000),
			mcplib.DefaultNumber(def),
		)
	}

	s.mcpServer.AddTool(
		tool("focus_summary", "Summarize tracked focus data: row counts, the latest day of goal/non-goal focus time, the last focus record and a health check."),
		s.handleSummary,
	)
	s.mcpServer.AddTool(
		tool("recent_focus_records", "List the newest focus and idle transitions (application, state, kind), newest first.", limit(50)),
		s.handleRecentFocusRecords,
	)
	s.mcpServer.AddTool(
		tool("recent_behavioral_events", "List the newest derived behavioral events such as RewardEvent, ProductivityDegradation, MicroBreak or BreakScheduled.",
			mcplib.WithString("event_type",
				mcplib.Description("Optional: only events of this type, e.g. RewardEvent"),
			),
			limit(50),
		),
		s.handleRecentBehavioralEvents,
	)
	s.mcpServer.AddTool(
		tool("daily_totals", "Goal and non-goal focus seconds per day, most recent day first.",
			mcplib.WithNumber("days",
				mcplib.Description("Number of days to return"),
				mcplib.Min(1),
				mcplib.DefaultNumber(7),
			),
		),
		s.handleDailyTotals,
	)
	s.mcpServer.AddTool(
		tool("context_switch_stats", "Context switch frequency, mean interval between switches and productivity degradation count for a trailing period.",
			mcplib.WithString("period",
				mcplib.Description("Trailing period as a Go duration, e.g. 1h or 24h. Default: 24h"),
			),
		),
		s.handleContextSwitchStats,
	)
}

func (s *Server) handleSummary(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	summary, err := s.inspector.Summary(ctx)
	if err != nil {
		return s.errorResult("summary", err), nil
	}
	health, err := s.inspector.Health(ctx)
	if err != nil {
		return s.errorResult("health", err), nil
	}
	return jsonResult(map[string]any{"summary": summary, "health": health})
}

func (s *Server) handleRecentFocusRecords(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	records, err := s.inspector.Records(ctx, request.GetInt("limit", 50))
	if err != nil {
		return s.errorResult("focus records", err), nil
	}
	return jsonResult(records)
}

func (s *Server) handleRecentBehavioralEvents(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	events, err := s.inspector.Events(ctx, request.GetString("event_type", ""), request.GetInt("limit", 50))
	if err != nil {
		return s.errorResult("behavioral events", err), nil
	}
	return jsonResult(events)
}

func (s *Server) handleDailyTotals(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	totals, err := s.inspector.Totals(ctx, request.GetInt("days", 7))
	if err != nil {
		return s.errorResult("daily totals", err), nil
	}
	return jsonResult(totals)
}

func (s *Server) handleContextSwitchStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	period, err := time.ParseDuration(request.GetString("period", "24h"))
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("invalid period: %v", err)), nil
	}
	stats, err := s.inspector.Switches(ctx, period)
	if err != nil {
		return s.errorResult("context switch stats", err), nil
	}
	return jsonResult(map[string]any{
		"period":                period.String(),
		"frequency":             stats.Frequency,
		"mean_interval_seconds": stats.MeanInterval.Seconds(),
		"degradations":          stats.Degradations,
	})
}

func (s *Server) errorResult(what string, err error) *mcplib.CallToolResult {
	s.log.Warn().Err(err).Str("query", what).Msg("tool failed")
	return mcplib.NewToolResultError(fmt.Sprintf("failed to load %s: %v", what, err))
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcplib.NewToolResultText(string(data)), nil
}
