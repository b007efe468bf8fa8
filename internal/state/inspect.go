// Package state provides read-mostly introspection over the focuswatch store.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/store"
	"github.com/vthunder/focuswatch/internal/types"
)

// Store is the subset of store.DB the inspector reads
type Store interface {
	Counts(ctx context.Context) (store.Counts, error)
	SchemaVersion(ctx context.Context) (int, error)
	RecentFocusRecords(ctx context.Context, limit int) ([]types.FocusRecord, error)
	RecentBehavioralEvents(ctx context.Context, eventType string, limit int) ([]types.DerivedEvent, error)
	TimerTotals(ctx context.Context, limit int) ([]types.TimerTotals, error)
	ContextSwitchStats(ctx context.Context, since time.Time) (store.SwitchStats, error)
	CleanupFocusRecords(ctx context.Context, olderThan time.Time) (int64, error)
}

// Inspector provides state introspection capabilities
type Inspector struct {
	db    Store
	clock clock.Clock
}

// NewInspector creates a new state inspector
func NewInspector(db Store, clk clock.Clock) *Inspector {
	if clk == nil {
		clk = clock.System{}
	}
	return &Inspector{db: db, clock: clk}
}

// Summary holds table sizes plus the most recent day of timer totals
type Summary struct {
	SchemaVersion int                `json:"schema_version"`
	Counts        store.Counts       `json:"counts"`
	LatestDay     *types.TimerTotals `json:"latest_day,omitempty"`
	LastRecord    *types.FocusRecord `json:"last_record,omitempty"`
}

// HealthReport holds health check results
type HealthReport struct {
	Status          string   `json:"status"` // "healthy", "warnings"
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// focusRecordWarn is the row count above which cleanup is recommended
const focusRecordWarn = 100000

// Summary returns a summary of all state components
func (i *Inspector) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	version, err := i.db.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	summary.SchemaVersion = version

	if summary.Counts, err = i.db.Counts(ctx); err != nil {
		return nil, err
	}

	totals, err := i.db.TimerTotals(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(totals) > 0 {
		summary.LatestDay = &totals[0]
	}

	records, err := i.db.RecentFocusRecords(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		summary.LastRecord = &records[0]
	}
	return summary, nil
}

// Health runs health checks and returns a report
func (i *Inspector) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Status: "healthy"}

	summary, err := i.Summary(ctx)
	if err != nil {
		return nil, err
	}

	if summary.Counts.FocusRecords > focusRecordWarn {
		report.Warnings = append(report.Warnings, fmt.Sprintf("High focus record count: %d", summary.Counts.FocusRecords))
		report.Recommendations = append(report.Recommendations, "Run focus-state cleanup --older-than=720h")
	}

	if summary.LastRecord == nil {
		report.Warnings = append(report.Warnings, "No focus records yet")
		report.Recommendations = append(report.Recommendations, "Check that the daemon is running and the activity probe is supported")
	} else if age := i.clock.Now().Sub(summary.LastRecord.Timestamp); age > 24*time.Hour {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Last focus record is %s old", age.Round(time.Minute)))
	}

	if len(report.Warnings) > 0 {
		report.Status = "warnings"
	}
	return report, nil
}

// Records returns the newest focus records
func (i *Inspector) Records(ctx context.Context, limit int) ([]types.FocusRecord, error) {
	return i.db.RecentFocusRecords(ctx, limit)
}

// Events returns the newest behavioral events, optionally of one type
func (i *Inspector) Events(ctx context.Context, eventType string, limit int) ([]types.DerivedEvent, error) {
	return i.db.RecentBehavioralEvents(ctx, eventType, limit)
}

// Totals returns the most recent days of timer totals
func (i *Inspector) Totals(ctx context.Context, days int) ([]types.TimerTotals, error) {
	return i.db.TimerTotals(ctx, days)
}

// Switches returns context switch statistics for the trailing period
func (i *Inspector) Switches(ctx context.Context, period time.Duration) (store.SwitchStats, error) {
	if period <= 0 {
		return store.SwitchStats{}, fmt.Errorf("period must be positive, got %s", period)
	}
	return i.db.ContextSwitchStats(ctx, i.clock.Now().Add(-period))
}

// Cleanup removes focus records older than the retention period
func (i *Inspector) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("older-than must be positive, got %s", olderThan)
	}
	return i.db.CleanupFocusRecords(ctx, i.clock.Now().Add(-olderThan))
}
