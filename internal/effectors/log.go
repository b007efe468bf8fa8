package effectors

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes notifications to the structured log
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender creates a log-backed sender
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs msg and returns its event id
func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	s.log.Info().
		Str("topic", string(msg.Topic)).
		Bool("prompt", msg.Prompt).
		Msg(msg.Text)
	return msg.EventID, nil
}
