package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vthunder/focuswatch/internal/clock"
	"github.com/vthunder/focuswatch/internal/logging"
	"github.com/vthunder/focuswatch/internal/state"
	"github.com/vthunder/focuswatch/internal/store"
)

func main() {
	_ = godotenv.Load()

	statePath := os.Getenv("FOCUSWATCH_STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	db, err := store.Open(statePath)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	inspector := state.NewInspector(db, clock.System{})
	ctx := context.Background()

	switch cmd {
	case "summary", "":
		handleSummary(ctx, inspector)
	case "health":
		handleHealth(ctx, inspector)
	case "records":
		handleRecords(ctx, inspector, os.Args[2:])
	case "events":
		handleEvents(ctx, inspector, os.Args[2:])
	case "totals":
		handleTotals(ctx, inspector, os.Args[2:])
	case "switches":
		handleSwitches(ctx, inspector, os.Args[2:])
	case "cleanup":
		handleCleanup(ctx, inspector, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`focus-state - Inspect focuswatch's recorded state

Usage: focus-state <command> [options]

Commands:
  summary                   Row counts, latest day and last record (default)
  health                    Run health checks with recommendations

  records                   Newest focus records
  records --limit=20        Limit output rows
  records --json            Print as JSON

  events                    Newest behavioral events
  events --type=RewardEvent Only events of one type

  totals                    Goal / non-goal focus time per day
  totals --days=30          Number of days to show

  switches                  Context switch stats for the last 24h
  switches --period=1h      Trailing period

  cleanup --older-than=720h Delete focus records older than duration

Environment:
  FOCUSWATCH_STATE_PATH     State directory (default: "state")`)
}

func fatal(err error) {
	logging.Error("state", err, "focus-state %s failed", commandName())
	os.Exit(1)
}

func commandName() string {
	if len(os.Args) < 2 {
		return "summary"
	}
	return os.Args[1]
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func handleSummary(ctx context.Context, inspector *state.Inspector) {
	summary, err := inspector.Summary(ctx)
	if err != nil {
		fatal(err)
	}

	fmt.Println("State Summary")
	fmt.Println("=============")
	fmt.Printf("Schema:            v%d\n", summary.SchemaVersion)
	fmt.Printf("Focus records:     %d\n", summary.Counts.FocusRecords)
	fmt.Printf("Behavioral events: %d\n", summary.Counts.BehavioralEvents)
	fmt.Printf("Timer days:        %d\n", summary.Counts.TimerDays)
	if d := summary.LatestDay; d != nil {
		fmt.Printf("Latest day:        %s (goal %s, non-goal %s)\n", d.Date,
			time.Duration(d.GoalFocusSeconds)*time.Second, time.Duration(d.NonGoalFocusSeconds)*time.Second)
	}
	if r := summary.LastRecord; r != nil {
		fmt.Printf("Last record:       %s %s in %s\n", r.Timestamp.Local().Format(time.DateTime), r.Kind, r.Application)
	}
}

func handleHealth(ctx context.Context, inspector *state.Inspector) {
	health, err := inspector.Health(ctx)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	for _, w := range health.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
	if len(health.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range health.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
}

func handleRecords(ctx context.Context, inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of records to show")
	asJSON := fs.Bool("json", false, "Print as JSON")
	fs.Parse(args)

	records, err := inspector.Records(ctx, *limit)
	if err != nil {
		fatal(err)
	}
	if *asJSON {
		printJSON(records)
		return
	}
	for _, r := range records {
		fmt.Printf("%s  %-18s %-13s %s\n", r.Timestamp.Local().Format(time.DateTime), r.Kind, r.State, r.Application)
	}
}

func handleEvents(ctx context.Context, inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	eventType := fs.String("type", "", "Only events of this type")
	limit := fs.Int("limit", 20, "Number of events to show")
	asJSON := fs.Bool("json", false, "Print as JSON")
	fs.Parse(args)

	events, err := inspector.Events(ctx, *eventType, *limit)
	if err != nil {
		fatal(err)
	}
	if *asJSON {
		printJSON(events)
		return
	}
	for _, ev := range events {
		meta, _ := json.Marshal(ev.Metadata)
		fmt.Printf("%s  %-24s %s\n", ev.Timestamp.Local().Format(time.DateTime), ev.Kind, meta)
	}
}

func handleTotals(ctx context.Context, inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("totals", flag.ExitOnError)
	days := fs.Int("days", 7, "Number of days to show")
	fs.Parse(args)

	totals, err := inspector.Totals(ctx, *days)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%-10s  %10s  %10s\n", "date", "goal", "non-goal")
	for _, t := range totals {
		fmt.Printf("%-10s  %10s  %10s\n", t.Date,
			time.Duration(t.GoalFocusSeconds)*time.Second, time.Duration(t.NonGoalFocusSeconds)*time.Second)
	}
}

func handleSwitches(ctx context.Context, inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("switches", flag.ExitOnError)
	period := fs.Duration("period", 24*time.Hour, "Trailing period")
	fs.Parse(args)

	stats, err := inspector.Switches(ctx, *period)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Last %s:\n", *period)
	fmt.Printf("  Switches:      %d\n", stats.Frequency)
	fmt.Printf("  Mean interval: %s\n", stats.MeanInterval.Round(time.Second))
	fmt.Printf("  Degradations:  %d\n", stats.Degradations)
}

func handleCleanup(ctx context.Context, inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 0, "Delete focus records older than duration (e.g., 720h)")
	fs.Parse(args)

	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "cleanup requires --older-than")
		os.Exit(1)
	}
	n, err := inspector.Cleanup(ctx, *olderThan)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Removed %d focus records older than %s\n", n, *olderThan)
}
