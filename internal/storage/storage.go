// Package storage persists reminders in a local SQLite database.
package storage

import (
	"strconv"
	"strings"
	"time"
)

// Config configures the reminder store.
type Config struct {
	// Path to the SQLite database file.
	Path string
	// BusyTimeout for concurrent access; 0 means default.
	BusyTimeout time.Duration
}

// Day sets are stored as a comma-joined list of weekday indices ("1,5").

func joinDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func splitDays(s string) ([]time.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}
