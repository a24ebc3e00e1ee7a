// Package reminder holds the hydration reminder domain model and the pure
// schedule arithmetic used by the scheduler service.
package reminder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Frequency describes how often a reminder fires.
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// MaxMessageLen bounds the reminder message text.
const MaxMessageLen = 255

// ErrInvalid is wrapped by all validation failures so callers can map them
// to a bad-request response.
var ErrInvalid = errors.New("invalid reminder")

// ErrNotFound is returned by stores when a reminder id has no row. The
// scheduler treats it as "deleted concurrently" and the HTTP layer as 404.
var ErrNotFound = errors.New("reminder not found")

// Reminder is a user-defined hydration reminder. The scheduler holds a
// read-only working copy; the persisted row is owned by the store.
type Reminder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	TimeOfDay string    `json:"time_of_day"` // "HH:MM", 00:00..23:59
	Frequency Frequency `json:"frequency"`

	// DaysOfWeek is required (non-empty) for weekly reminders and must be
	// empty for every other frequency. Sunday = 0.
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`

	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Hour and minute must be in range; single-digit hours are accepted,
// minutes are always two digits.
var timeOfDayRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseTimeOfDay parses a wall-clock "HH:MM" string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: time %q, expected HH:MM between 00:00 and 23:59", ErrInvalid, s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// Validate checks the structural rules enforced at create/update time.
// Day-of-week values outside 0..6 are rejected here, not at fire time.
func (r *Reminder) Validate() error {
	if _, _, err := ParseTimeOfDay(r.TimeOfDay); err != nil {
		return err
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: frequency %q, must be once, daily, weekly or monthly", ErrInvalid, r.Frequency)
	}
	if r.Frequency == FrequencyWeekly {
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly reminders require a non-empty day set", ErrInvalid)
		}
		seen := [7]bool{}
		for _, d := range r.DaysOfWeek {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: day of week %d out of range 0..6", ErrInvalid, int(d))
			}
			if seen[d] {
				return fmt.Errorf("%w: duplicate day of week %d", ErrInvalid, int(d))
			}
			seen[d] = true
		}
	} else if len(r.DaysOfWeek) != 0 {
		return fmt.Errorf("%w: day set is only allowed for weekly reminders", ErrInvalid)
	}
	if r.Message == "" {
		return fmt.Errorf("%w: message must not be empty", ErrInvalid)
	}
	if len(r.Message) > MaxMessageLen {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalid, MaxMessageLen)
	}
	return nil
}
