package reminder

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw    string
		hour   int
		minute int
		ok     bool
	}{
		{raw: "08:00", hour: 8, minute: 0, ok: true},
		{raw: "8:05", hour: 8, minute: 5, ok: true},
		{raw: "00:00", hour: 0, minute: 0, ok: true},
		{raw: "23:59", hour: 23, minute: 59, ok: true},
		{raw: "24:00", ok: false},
		{raw: "12:60", ok: false},
		{raw: "12:5", ok: false},
		{raw: "12", ok: false},
		{raw: "12:00:00", ok: false},
		{raw: "", ok: false},
		{raw: "ab:cd", ok: false},
		{raw: "-1:30", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			h, m, err := ParseTimeOfDay(tt.raw)
			if tt.ok {
				if err != nil {
					t.Fatalf("ParseTimeOfDay(%q) error: %v", tt.raw, err)
				}
				if h != tt.hour || m != tt.minute {
					t.Fatalf("ParseTimeOfDay(%q) = %d:%d, want %d:%d", tt.raw, h, m, tt.hour, tt.minute)
				}
				return
			}
			if err == nil {
				t.Fatalf("ParseTimeOfDay(%q) expected error", tt.raw)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error %v is not ErrInvalid", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := func() Reminder {
		return Reminder{
			ID:        "r1",
			OwnerID:   "42",
			TimeOfDay: "08:30",
			Frequency: FrequencyDaily,
			Message:   "drink water",
		}
	}

	tests := []struct {
		name   string
		mutate func(r *Reminder)
		ok     bool
	}{
		{name: "valid daily", mutate: func(r *Reminder) {}, ok: true},
		{name: "valid once", mutate: func(r *Reminder) { r.Frequency = FrequencyOnce }, ok: true},
		{name: "valid monthly", mutate: func(r *Reminder) { r.Frequency = FrequencyMonthly }, ok: true},
		{name: "valid weekly", mutate: func(r *Reminder) {
			r.Frequency = FrequencyWeekly
			r.DaysOfWeek = []time.Weekday{time.Monday, time.Friday}
		}, ok: true},
		{name: "bad time", mutate: func(r *Reminder) { r.TimeOfDay = "25:00" }},
		{name: "bad frequency", mutate: func(r *Reminder) { r.Frequency = "hourly" }},
		{name: "weekly without days", mutate: func(r *Reminder) { r.Frequency = FrequencyWeekly }},
		{name: "weekly day out of range", mutate: func(r *Reminder) {
			r.Frequency = FrequencyWeekly
			r.DaysOfWeek = []time.Weekday{7}
		}},
		{name: "weekly duplicate day", mutate: func(r *Reminder) {
			r.Frequency = FrequencyWeekly
			r.DaysOfWeek = []time.Weekday{time.Monday, time.Monday}
		}},
		{name: "days on daily", mutate: func(r *Reminder) { r.DaysOfWeek = []time.Weekday{time.Monday} }},
		{name: "empty message", mutate: func(r *Reminder) { r.Message = "" }},
		{name: "message too long", mutate: func(r *Reminder) { r.Message = strings.Repeat("x", MaxMessageLen+1) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := r.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() expected error")
				}
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("error %v is not ErrInvalid", err)
				}
			}
		})
	}
}
