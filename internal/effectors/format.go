package effectors

import (
	"fmt"
	"time"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/types"
)

// probabilityAlert is the distraction probability worth telling the user about
const probabilityAlert = 0.8

// Format renders a bus payload as a notification. ok is false for payloads
// that should not reach the user.
func Format(topic bus.Topic, payload any) (Message, bool) {
	switch ev := payload.(type) {
	case types.FocusEvent:
		return formatFocus(topic, ev)
	case types.DerivedEvent:
		return formatDerived(topic, ev)
	case types.ProbabilityUpdate:
		if ev.Probability < probabilityAlert {
			return Message{}, false
		}
		return Message{
			Topic: topic,
			Text:  fmt.Sprintf("Heads up: distraction risk is high (%.0f%%)", ev.Probability*100),
			Short: fmt.Sprintf("Distraction risk %.0f%%", ev.Probability*100),
		}, true
	}
	return Message{}, false
}

func formatFocus(topic bus.Topic, ev types.FocusEvent) (Message, bool) {
	msg := Message{EventID: ev.EventID.String(), Topic: topic}
	switch ev.Kind {
	case types.KindFocusChanged:
		msg.Text = fmt.Sprintf("Back to work in %s", ev.ApplicationName)
		msg.Short = "Focus"
	case types.KindIdleChanged:
		msg.Text = fmt.Sprintf("Break started (idle after %s)", ev.ApplicationName)
		msg.Short = "Break"
	default:
		return Message{}, false
	}
	return msg, true
}

func formatDerived(topic bus.Topic, ev types.DerivedEvent) (Message, bool) {
	msg := Message{EventID: ev.EventID.String(), Topic: topic}
	switch topic {
	case bus.TopicRewardEvent:
		// Goal timer rewards arrive through displayRewardUI
		if ev.Metadata["trigger"] == "goal_timer" {
			return Message{}, false
		}
		msg.Text = "🎉 Sustained focus! Keep the streak going."
		msg.Short = "🎉"
	case bus.TopicDisplayRewardUI:
		msg.Text = fmt.Sprintf("🎉 %s of goal focus today. Nice work.", seconds(ev.Metadata["goalFocusTime"]))
		msg.Short = "🎉 " + seconds(ev.Metadata["goalFocusTime"]).String()
	case bus.TopicProductivityDegradation:
		msg.Text = fmt.Sprintf("You've switched context %v times in the last few minutes. Try picking one task.", ev.Metadata["contextSwitches"])
		msg.Short = "Too many switches"
	case bus.TopicNeuralPatternDisruptor:
		msg.Text = "Distraction pattern detected. Take a breath and refocus."
		msg.Short = "Refocus"
	case bus.TopicMicroBreak:
		msg.Text = "Long deep work session. A short micro-break will help."
		msg.Short = "Micro-break"
	case bus.TopicBreakScheduled:
		msg.Text = "Time for a break. React ✅ to take it or ❌ to skip."
		msg.Short = "Break? ✅/❌"
		msg.Prompt = true
	case bus.TopicBreakCompliance:
		if ev.Metadata["accepted"] == true {
			msg.Text = "Enjoy your break."
		} else {
			msg.Text = fmt.Sprintf("Break skipped (%v skipped so far).", ev.Metadata["skippedBreaks"])
		}
	default:
		return Message{}, false
	}
	return msg, true
}

// seconds converts a metadata value holding whole seconds to a duration
func seconds(v any) time.Duration {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	case float64:
		return time.Duration(n) * time.Second
	}
	return 0
}
