package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"waterminder/internal/reminder"
)

// Service is the scheduling authority for this process. Construct one with
// New, Start it, then Reconcile once against the store; afterwards the API
// layer drives it through Create/Update/Delete.
type Service struct {
	log   zerolog.Logger
	cfg   Config
	clk   clock.Clock
	store Store
	sink  Sink
	reg   *Registry
	loc   *time.Location

	mu        sync.Mutex
	fireCh    chan string
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	loopWG    sync.WaitGroup
}

func New(cfg Config, store Store, sink Sink, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{
		log:   log.With().Str("component", "scheduler").Logger(),
		cfg:   cfg,
		clk:   clk,
		store: store,
		sink:  sink,
		reg:   NewRegistry(clk),
		loc:   loadLocation(cfg.Timezone, log),
	}
}

func loadLocation(tz string, log zerolog.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Str("tz", tz).Err(err).Msg("invalid timezone; falling back to Local")
		return time.Local
	}
	return loc
}

// Start launches the serialized fire loop. Safe to call once per lifecycle;
// a second call while running is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	size := s.cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	s.fireCh = make(chan string, size)

	// Local captures prevent races if fields are swapped during Stop().
	runCtx := s.runCtx
	stopCh := s.stopCh
	fireCh := s.fireCh

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Any("panic", r).Str("stack", string(debug.Stack())).Msg("panic in fire loop")
			}
		}()
		s.fireLoop(runCtx, stopCh, fireCh)
	}()
	s.log.Info().Str("tz", s.loc.String()).Int("queue_size", size).Msg("service started")
}

// Stop cancels every live timer and shuts down the fire loop, waiting until
// ctx expires at most.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	s.stopCh = nil
	s.runCtx = nil
	s.runCancel = nil
	s.fireCh = nil
	s.mu.Unlock()

	s.reg.CancelAll()
	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.loopWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("service stopped")
	case <-ctx.Done():
		// loop exits in the background
	}
}

func (s *Service) fireLoop(ctx context.Context, stopCh <-chan struct{}, fireCh <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case id := <-fireCh:
			s.onFire(ctx, id)
		}
	}
}

// enqueueFire hands a fire event from a timer goroutine to the serialized
// loop. Never blocks: a full queue is an overload signal and the event is
// dropped with an error log.
func (s *Service) enqueueFire(id string) {
	s.mu.Lock()
	ch := s.fireCh
	s.mu.Unlock()
	if ch == nil {
		s.log.Debug().Str("reminder_id", id).Msg("scheduler not running; dropping fire event")
		return
	}
	select {
	case ch <- id:
	default:
		s.log.Error().Str("reminder_id", id).Int("queue_len", len(ch)).Int("queue_cap", cap(ch)).
			Msg("fire queue full; dropping fire event")
	}
}

// Create validates the reminder and installs its first timer. A one-shot
// reminder whose instant has already passed is finalized instead: the
// persisted row is deleted and OutcomeExpired reported. Only validation
// failures are returned as errors the API layer should surface as bad
// requests.
func (s *Service) Create(ctx context.Context, r *reminder.Reminder) (Outcome, error) {
	if r.ID == "" {
		return "", errors.New("reminder id is required")
	}
	if err := r.Validate(); err != nil {
		return "", err
	}
	return s.schedule(ctx, r)
}

// Update replaces the reminder's live timer: cancel then create, with the
// next fire time computed from now, never from stale data. It never
// partially updates a live timer.
func (s *Service) Update(ctx context.Context, r *reminder.Reminder) (Outcome, error) {
	if r.ID == "" {
		return "", errors.New("reminder id is required")
	}
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.reg.Cancel(r.ID)
	return s.schedule(ctx, r)
}

// Delete cancels the timer and removes the persisted row. Idempotent:
// deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.reg.Cancel(id)
	return s.store.Remove(ctx, id)
}

// Has reports whether a live timer exists for the id.
func (s *Service) Has(id string) bool { return s.reg.Has(id) }

// Snapshot lists the live scheduled tasks ordered by next fire time.
func (s *Service) Snapshot() []TaskInfo { return s.reg.Snapshot() }

// schedule computes the next fire instant and installs the timer. Shared by
// Create, Update, the fire loop and Reconcile.
func (s *Service) schedule(ctx context.Context, r *reminder.Reminder) (Outcome, error) {
	now := s.clk.Now().In(s.loc)
	next, err := reminder.NextFireTime(r, now)
	if errors.Is(err, reminder.ErrExpired) {
		// Resolved ambiguity: a stale one-shot reminder is actively
		// deleted, not silently skipped.
		if rmErr := s.store.Remove(ctx, r.ID); rmErr != nil {
			s.log.Warn().Str("reminder_id", r.ID).Err(rmErr).Msg("failed to delete expired reminder")
		}
		s.log.Info().Str("reminder_id", r.ID).Str("time_of_day", r.TimeOfDay).
			Msg("one-shot reminder already in the past; dropped")
		return OutcomeExpired, nil
	}
	if err != nil {
		s.log.Error().Str("reminder_id", r.ID).Err(err).Msg("cannot compute next fire time; reminder left unscheduled")
		return "", err
	}

	id := r.ID
	if err := s.reg.Install(id, next, func() { s.enqueueFire(id) }); err != nil {
		s.log.Error().Str("reminder_id", id).Time("fire_at", next).Err(err).
			Msg("timer install rejected; reminder left unscheduled")
		return "", err
	}
	s.log.Debug().Str("reminder_id", id).Str("frequency", string(r.Frequency)).Time("next", next).
		Msg("reminder scheduled")
	return OutcomeScheduled, nil
}

// onFire runs on the serialized loop for each expired timer. The current
// persisted reminder is re-fetched by id: a closure-captured copy could be
// stale after a concurrent update, and a concurrently deleted reminder must
// be a no-op.
func (s *Service) onFire(ctx context.Context, id string) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, reminder.ErrNotFound) {
		s.log.Debug().Str("reminder_id", id).Msg("fired reminder no longer exists; skipping")
		return
	}
	if err != nil {
		s.log.Error().Str("reminder_id", id).Err(err).Msg("failed to load fired reminder; skipping")
		return
	}

	if err := s.sink.Deliver(ctx, *r); err != nil {
		// Delivery failure never destabilizes the scheduler: log and
		// continue with reschedule/finalize as usual.
		s.log.Warn().Str("reminder_id", id).Str("owner_id", r.OwnerID).Err(err).Msg("notification delivery failed")
	}

	if r.Frequency == reminder.FrequencyOnce {
		if err := s.store.Remove(ctx, id); err != nil {
			s.log.Warn().Str("reminder_id", id).Err(err).Msg("failed to delete fired one-shot reminder")
		}
		s.log.Info().Str("reminder_id", id).Msg("one-shot reminder completed")
		return
	}

	if _, err := s.schedule(ctx, r); err != nil {
		s.log.Error().Str("reminder_id", id).Err(err).Msg("reschedule after fire failed")
	}
}

// Reconcile rebuilds the registry from the store on startup. Every
// persisted reminder goes through the create logic from scratch; no
// previous in-memory state survives a restart. It returns how many
// reminders were scheduled and how many were dropped as expired.
func (s *Service) Reconcile(ctx context.Context) (scheduled, dropped int, err error) {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, 0, err
	}

	for i := range all {
		r := all[i]
		if vErr := r.Validate(); vErr != nil {
			// A malformed row slipped past creation-time validation;
			// skip it rather than crash.
			s.log.Error().Str("reminder_id", r.ID).Err(vErr).Msg("persisted reminder invalid; skipping")
			continue
		}
		outcome, sErr := s.schedule(ctx, &r)
		switch {
		case sErr != nil:
			s.log.Error().Str("reminder_id", r.ID).Err(sErr).Msg("reconcile: scheduling failed; skipping")
		case outcome == OutcomeExpired:
			dropped++
		default:
			scheduled++
		}
	}

	s.log.Info().Int("scheduled", scheduled).Int("dropped_expired", dropped).Int("total", len(all)).
		Msg("startup reconciliation complete")
	return scheduled, dropped, nil
}
