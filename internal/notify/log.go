package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel writes notifications to the process log. It is the default
// channel and the one used in development.
type LogChannel struct {
	log zerolog.Logger
}

func NewLogChannel(log zerolog.Logger) *LogChannel {
	return &LogChannel{log: log.With().Str("component", "notify-log").Logger()}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, n Notification) error {
	c.log.Info().
		Str("reminder_id", n.ReminderID).
		Str("owner_id", n.OwnerID).
		Time("fired_at", n.FiredAt).
		Msg(n.Message)
	return nil
}
