// Package notify delivers fired hydration reminders to the user through a
// configurable channel (log, webhook or Telegram).
//
// The Service is an async pipeline: queue + worker pool + rate limit +
// retry + dedup. The scheduler hands it reminders via Deliver, which only
// enqueues and returns; channel I/O happens on the workers, so a slow or
// failing transport can never stall a timer fire.
package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Notification is one fired reminder on its way to the user.
type Notification struct {
	ReminderID string    `json:"reminder_id"`
	OwnerID    string    `json:"owner_id"`
	Message    string    `json:"message"`
	FiredAt    time.Time `json:"fired_at"`
}

// Channel is a delivery transport. Send failures are retried by the
// Service up to its configured retry budget.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Config controls the async pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// DedupWindow suppresses a second delivery of the same reminder within
	// the window (e.g. a fire racing a manual test delivery). 0 disables.
	DedupWindow time.Duration
	// SendTimeout bounds one channel call. 0 means a sensible default.
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// HistoryItem records one successful delivery, kept in a bounded ring for
// operational inspection.
type HistoryItem struct {
	At         time.Time `json:"at"`
	ReminderID string    `json:"reminder_id"`
	OwnerID    string    `json:"owner_id"`
}
