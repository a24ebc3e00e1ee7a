package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"waterminder/internal/reminder"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed reminder store. It satisfies the scheduler's
// Store contract and additionally exposes the write operations used by the
// HTTP layer.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at cfg.Path and applies
// migrations.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores a new reminder. A missing id is assigned a fresh UUID and a
// zero CreatedAt is set to the current time; both are written back to r.
func (s *Store) Insert(ctx context.Context, r *reminder.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, owner_id, time_of_day, frequency, days_of_week, message, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.TimeOfDay, string(r.Frequency), nullStr(joinDays(r.DaysOfWeek)), r.Message, r.CreatedAt.UnixMilli(),
	)
	return err
}

// Update rewrites the schedule fields of an existing reminder. Owner and
// creation time are immutable.
func (s *Store) Update(ctx context.Context, r *reminder.Reminder) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET time_of_day = ?, frequency = ?, days_of_week = ?, message = ? WHERE id = ?`,
		r.TimeOfDay, string(r.Frequency), nullStr(joinDays(r.DaysOfWeek)), r.Message, r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return reminder.ErrNotFound
	}
	return nil
}

// Get returns the reminder with the given id, or reminder.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, time_of_day, frequency, days_of_week, message, created_at
		 FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reminder.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Remove deletes the reminder with the given id. Removing an unknown id is
// not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

// LoadAll returns every persisted reminder, used by startup reconciliation.
func (s *Store) LoadAll(ctx context.Context) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, time_of_day, frequency, days_of_week, message, created_at
		 FROM reminders ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ListByOwner returns the reminders belonging to one user.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, time_of_day, frequency, days_of_week, message, created_at
		 FROM reminders WHERE owner_id = ? ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	var (
		r         reminder.Reminder
		freq      string
		days      sql.NullString
		createdMS int64
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.TimeOfDay, &freq, &days, &r.Message, &createdMS)
	if err != nil {
		return nil, err
	}
	r.Frequency = reminder.Frequency(freq)
	if days.Valid {
		r.DaysOfWeek, err = splitDays(days.String)
		if err != nil {
			return nil, fmt.Errorf("reminder %s: bad day set: %w", r.ID, err)
		}
	}
	r.CreatedAt = time.UnixMilli(createdMS)
	return &r, nil
}

func collectReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
