package types

import (
	"time"

	"github.com/google/uuid"
)

// NewEventID returns a fresh random event identifier
func NewEventID() uuid.UUID {
	return uuid.New()
}

// FocusState is the classified attention state of the user
type FocusState string

const (
	StateWorkFocus    FocusState = "work_focus"
	StateBreakLeisure FocusState = "break_leisure"
)

// String returns a string representation of FocusState
func (s FocusState) String() string {
	switch s {
	case StateWorkFocus:
		return "Work Focus"
	case StateBreakLeisure:
		return "Break/Leisure"
	default:
		return "Unknown"
	}
}

// ActivitySample is a raw reading from the platform activity source.
// It is never persisted.
type ActivitySample struct {
	ActiveWindow string    `json:"active_window"`
	ObservedAt   time.Time `json:"observed_at"`
}

// FocusEventKind identifies what the state machine observed
type FocusEventKind string

const (
	KindFocusChanged       FocusEventKind = "FocusChanged"
	KindIdleChanged        FocusEventKind = "IdleChanged"
	KindApplicationChanged FocusEventKind = "ApplicationChanged" // app switch while already focused
)

// FocusEvent is published by the focus state machine. Immutable once published.
type FocusEvent struct {
	EventID         uuid.UUID      `json:"event_id"`
	Kind            FocusEventKind `json:"kind"`
	State           FocusState     `json:"state"`
	ApplicationName string         `json:"application_name"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Stamp returns the event time (used by recency windows)
func (e FocusEvent) Stamp() time.Time {
	return e.Timestamp
}

// DerivedKind identifies an event synthesized by an analytics engine
type DerivedKind string

const (
	DerivedReward                  DerivedKind = "RewardEvent"
	DerivedProductivityDegradation DerivedKind = "ProductivityDegradation"
	DerivedNeuralPatternDisruptor  DerivedKind = "NeuralPatternDisruptor"
	DerivedMicroBreak              DerivedKind = "MicroBreak"
	DerivedComplianceTracking      DerivedKind = "ComplianceTracking"
	DerivedBreakScheduled          DerivedKind = "BreakScheduled"
	DerivedBreakAccepted           DerivedKind = "BreakAccepted"
	DerivedBreakDismissed          DerivedKind = "BreakDismissed"
	DerivedSkippedBreak            DerivedKind = "SkippedBreak"
)

// DerivedEvent is a behavioral event synthesized from the focus/idle stream
type DerivedEvent struct {
	EventID   uuid.UUID      `json:"event_id"`
	Kind      DerivedKind    `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewDerivedEvent builds a derived event with a fresh ID
func NewDerivedEvent(kind DerivedKind, at time.Time, metadata map[string]any) DerivedEvent {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return DerivedEvent{
		EventID:   NewEventID(),
		Kind:      kind,
		Timestamp: at,
		Metadata:  metadata,
	}
}

// Stamp returns the event time
func (e DerivedEvent) Stamp() time.Time {
	return e.Timestamp
}

// TimerMode is the focus timer currently accruing time
type TimerMode string

const (
	TimerNone    TimerMode = ""
	TimerGoal    TimerMode = "goal"
	TimerNonGoal TimerMode = "non_goal"
)

// FocusTimerState holds the daily goal / non-goal counters.
// Only the counter selected by CurrentMode advances.
type FocusTimerState struct {
	CurrentMode    TimerMode `json:"current_mode"`
	GoalSeconds    int       `json:"goal_seconds"`
	NonGoalSeconds int       `json:"non_goal_seconds"`
	Date           string    `json:"date"` // tracked day, 2006-01-02
}

// ProbabilityUpdate carries a distraction prediction
type ProbabilityUpdate struct {
	Probability  float64   `json:"probability"`
	ModelVersion string    `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// FocusRecord is the persisted form of a focus or idle observation
type FocusRecord struct {
	ID          int64          `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Application string         `json:"application"`
	State       FocusState     `json:"state"`
	Kind        FocusEventKind `json:"kind"`
}

// RecordOf converts a published focus event into its persisted form
func RecordOf(ev FocusEvent) FocusRecord {
	return FocusRecord{
		Timestamp:   ev.Timestamp,
		Application: ev.ApplicationName,
		State:       ev.State,
		Kind:        ev.Kind,
	}
}

// TimerTotals is one persisted day of focus timer totals
type TimerTotals struct {
	Date                string `json:"date"`
	GoalFocusSeconds    int    `json:"goal_focus_seconds"`
	NonGoalFocusSeconds int    `json:"non_goal_focus_seconds"`
}
