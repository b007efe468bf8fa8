package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/focuswatch/internal/types"
)

// InsertFocusRecord appends a focus or idle observation
func (s *DB) InsertFocusRecord(ctx context.Context, r types.FocusRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO focus_records (timestamp, application, state, kind) VALUES (?, ?, ?, ?)`,
		formatTS(r.Timestamp), r.Application, string(r.State), string(r.Kind))
	if err != nil {
		return fmt.Errorf("insert focus record: %w", err)
	}
	return nil
}

// InsertBehavioralEvent stores a derived event. Re-inserting the same event
// id is a no-op.
func (s *DB) InsertBehavioralEvent(ctx context.Context, ev types.DerivedEvent) error {
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO behavioral_events (event_id, event_type, timestamp, metadata) VALUES (?, ?, ?, ?)`,
		ev.EventID.String(), string(ev.Kind), formatTS(ev.Timestamp), string(data))
	if err != nil {
		return fmt.Errorf("insert behavioral event: %w", err)
	}
	return nil
}

// InsertTimerTotals stores a day's totals, replacing an earlier flush of the same day
func (s *DB) InsertTimerTotals(ctx context.Context, t types.TimerTotals) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timer_records (date, goal_focus_time, non_goal_focus_time) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			goal_focus_time = excluded.goal_focus_time,
			non_goal_focus_time = excluded.non_goal_focus_time`,
		t.Date, t.GoalFocusSeconds, t.NonGoalFocusSeconds)
	if err != nil {
		return fmt.Errorf("insert timer totals: %w", err)
	}
	return nil
}

// RecentFocusRecords returns up to limit records, newest first
func (s *DB) RecentFocusRecords(ctx context.Context, limit int) ([]types.FocusRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, application, state, kind FROM focus_records ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query focus records: %w", err)
	}
	defer rows.Close()

	var out []types.FocusRecord
	for rows.Next() {
		var r types.FocusRecord
		var ts, state, kind string
		if err := rows.Scan(&r.ID, &ts, &r.Application, &state, &kind); err != nil {
			return nil, fmt.Errorf("scan focus record: %w", err)
		}
		if r.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		r.State = types.FocusState(state)
		r.Kind = types.FocusEventKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentBehavioralEvents returns up to limit events, newest first.
// An empty eventType matches every type.
func (s *DB) RecentBehavioralEvents(ctx context.Context, eventType string, limit int) ([]types.DerivedEvent, error) {
	query := `SELECT event_id, event_type, timestamp, metadata FROM behavioral_events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query behavioral events: %w", err)
	}
	defer rows.Close()

	var out []types.DerivedEvent
	for rows.Next() {
		var ev types.DerivedEvent
		var id, kind, ts, meta string
		if err := rows.Scan(&id, &kind, &ts, &meta); err != nil {
			return nil, fmt.Errorf("scan behavioral event: %w", err)
		}
		if ev.EventID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", id, err)
		}
		if ev.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		ev.Kind = types.DerivedKind(kind)
		if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata for %s: %w", id, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TimerTotals returns up to limit days, most recent first
func (s *DB) TimerTotals(ctx context.Context, limit int) ([]types.TimerTotals, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, goal_focus_time, non_goal_focus_time FROM timer_records ORDER BY date DESC LIMIT ?`,
		limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("query timer totals: %w", err)
	}
	defer rows.Close()

	var out []types.TimerTotals
	for rows.Next() {
		var t types.TimerTotals
		if err := rows.Scan(&t.Date, &t.GoalFocusSeconds, &t.NonGoalFocusSeconds); err != nil {
			return nil, fmt.Errorf("scan timer totals: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SwitchStats summarizes context switching over a period
type SwitchStats struct {
	Frequency    int           `json:"frequency"`     // idle transitions and application switches
	MeanInterval time.Duration `json:"mean_interval"` // average gap between consecutive switches
	Degradations int           `json:"degradations"`  // ProductivityDegradation events
}

// ContextSwitchStats computes switch frequency and mean spacing since the given time
func (s *DB) ContextSwitchStats(ctx context.Context, since time.Time) (SwitchStats, error) {
	var stats SwitchStats

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp FROM focus_records
		WHERE kind IN (?, ?) AND timestamp >= ?
		ORDER BY timestamp ASC`,
		string(types.KindIdleChanged), string(types.KindApplicationChanged), formatTS(since))
	if err != nil {
		return stats, fmt.Errorf("query context switches: %w", err)
	}
	defer rows.Close()

	var prev time.Time
	var gaps time.Duration
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return stats, fmt.Errorf("scan context switch: %w", err)
		}
		t, err := parseTS(ts)
		if err != nil {
			return stats, err
		}
		if stats.Frequency > 0 {
			gaps += t.Sub(prev)
		}
		prev = t
		stats.Frequency++
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if stats.Frequency > 1 {
		stats.MeanInterval = gaps / time.Duration(stats.Frequency-1)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM behavioral_events WHERE event_type = ? AND timestamp >= ?`,
		string(types.DerivedProductivityDegradation), formatTS(since)).Scan(&stats.Degradations)
	if err != nil {
		return stats, fmt.Errorf("count degradations: %w", err)
	}
	return stats, nil
}

// CleanupFocusRecords deletes focus records older than the cutoff and
// returns how many were removed
func (s *DB) CleanupFocusRecords(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM focus_records WHERE timestamp < ?`, formatTS(olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup focus records: %w", err)
	}
	return res.RowsAffected()
}

// Counts holds table sizes
type Counts struct {
	FocusRecords     int `json:"focus_records"`
	BehavioralEvents int `json:"behavioral_events"`
	TimerDays        int `json:"timer_days"`
}

// Counts returns the number of rows in each table
func (s *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"focus_records", &c.FocusRecords},
		{"behavioral_events", &c.BehavioralEvents},
		{"timer_records", &c.TimerDays},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return c, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
