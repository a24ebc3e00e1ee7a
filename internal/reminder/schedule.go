package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrExpired reports a one-shot reminder whose instant is not in the future.
// It is not a hard error: callers finalize the reminder instead of
// scheduling it.
var ErrExpired = errors.New("reminder time already passed")

// Recurring reminders are expressed as classic 5-field cron specs and the
// next occurrence is computed by the cron parser, which is strictly
// monotonic (Next never returns an instant at or before its argument).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronSpec renders the recurring schedule as a 5-field cron expression:
//
//	daily   -> "M H * * *"
//	weekly  -> "M H * * d1,d2,..."
//	monthly -> "M H 1 * *" (first of month only)
//
// It errors for one-shot reminders, which have no cron form.
func (r *Reminder) CronSpec() (string, error) {
	hour, minute, err := ParseTimeOfDay(r.TimeOfDay)
	if err != nil {
		return "", err
	}
	switch r.Frequency {
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return "", fmt.Errorf("%w: weekly reminders require a non-empty day set", ErrInvalid)
		}
		days := make([]string, len(r.DaysOfWeek))
		for i, d := range r.DaysOfWeek {
			days[i] = strconv.Itoa(int(d))
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(days, ",")), nil
	case FrequencyMonthly:
		return fmt.Sprintf("%d %d 1 * *", minute, hour), nil
	default:
		return "", fmt.Errorf("frequency %q has no cron form", r.Frequency)
	}
}

// NextFireTime computes the next instant the reminder should fire, strictly
// after now. For one-shot reminders the instant is today's date at the
// reminder's time of day; if that has already passed, ErrExpired is
// returned and the reminder must not be installed.
//
// Pure: no I/O, no clock access. The result is in now's location.
func NextFireTime(r *Reminder, now time.Time) (time.Time, error) {
	if r.Frequency == FrequencyOnce {
		hour, minute, err := ParseTimeOfDay(r.TimeOfDay)
		if err != nil {
			return time.Time{}, err
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !at.After(now) {
			return time.Time{}, ErrExpired
		}
		return at, nil
	}

	spec, err := r.CronSpec()
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return sched.Next(now), nil
}
