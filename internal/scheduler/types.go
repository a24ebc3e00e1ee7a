package scheduler

import (
	"context"
	"time"

	"waterminder/internal/reminder"
)

// Config controls the scheduler service.
type Config struct {
	// Timezone is the IANA name of the wall-clock frame all schedules are
	// interpreted in, e.g. "Asia/Jakarta". Empty means the system local
	// time.
	Timezone string
	// QueueSize bounds the fire-event queue. 0 means a sensible default.
	QueueSize int
}

// Store is the persistence contract the scheduler consumes. Row creation
// and updates are done by the API layer; the scheduler itself only reads,
// and deletes one-shot reminders it has fired or found expired.
type Store interface {
	LoadAll(ctx context.Context) ([]reminder.Reminder, error)
	Get(ctx context.Context, id string) (*reminder.Reminder, error)
	Remove(ctx context.Context, id string) error
}

// Sink consumes fired reminders. Delivery failures are logged by the
// scheduler and not retried here; any retry policy belongs to the sink.
type Sink interface {
	Deliver(ctx context.Context, r reminder.Reminder) error
}

// Outcome reports what Create/Update did with a reminder.
type Outcome string

const (
	// OutcomeScheduled means a timer was installed for a future instant.
	OutcomeScheduled Outcome = "scheduled"
	// OutcomeExpired means a one-shot reminder's instant had already
	// passed; it was finalized (row deleted) instead of scheduled.
	OutcomeExpired Outcome = "expired"
)

// TaskInfo describes one live registry entry.
type TaskInfo struct {
	ReminderID string    `json:"reminder_id"`
	NextFireAt time.Time `json:"next_fire_at"`
}
