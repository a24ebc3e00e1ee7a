package notify

import (
	"context"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"waterminder/internal/reminder"
)

const historyCap = 300

// Service is the async notification pipeline. It is safe for concurrent
// use.
type Service struct {
	log     zerolog.Logger
	cfg     Config
	channel Channel
	limiter *rate.Limiter

	mu        sync.Mutex
	accepting bool
	queue     chan Notification
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// In-memory dedup cache: key -> suppress until.
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, channel Channel, log zerolog.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		log:     log.With().Str("component", "notifier").Str("channel", channel.Name()).Logger(),
		cfg:     cfg,
		channel: channel,
		// Token bucket: burst = rate per sec, so short spikes don't block.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[string]time.Time{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	runCtx := s.runCtx
	queue := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Int("worker", i).Any("panic", r).Str("stack", string(debug.Stack())).
						Msg("panic in notifier worker")
				}
			}()
			s.workerLoop(runCtx, queue)
		}()
	}
	s.log.Info().Int("workers", s.cfg.Workers).Int("queue_size", s.cfg.QueueSize).Msg("notifier started")
}

// Stop blocks new deliveries and waits for the workers until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	cancel := s.runCancel
	s.queue = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("notifier stopped")
	case <-ctx.Done():
	}
}

// Deliver satisfies the scheduler's Sink contract: enqueue and return.
func (s *Service) Deliver(ctx context.Context, r reminder.Reminder) error {
	return s.Enqueue(ctx, Notification{
		ReminderID: r.ID,
		OwnerID:    r.OwnerID,
		Message:    r.Message,
		FiredAt:    time.Now(),
	})
}

// Enqueue adds a notification to the pipeline without blocking. A duplicate
// of a recently enqueued reminder inside the dedup window is silently
// suppressed.
func (s *Service) Enqueue(ctx context.Context, n Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	if window > 0 && !s.dedupAllow(n.ReminderID, window) {
		s.log.Debug().Str("reminder_id", n.ReminderID).Msg("duplicate notification suppressed")
		return nil
	}

	select {
	case q <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// History returns a copy of the recent successful deliveries.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	// Opportunistic prune so the map can't grow unbounded.
	for k, until := range s.dedup {
		if now.After(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

func (s *Service) workerLoop(ctx context.Context, queue <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-queue:
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n Notification) {
	maxAttempts := 1 + s.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Rate limit, honoring cancellation.
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := s.channel.Send(callCtx, n)
		cancel()
		if err == nil {
			s.appendHistory(n)
			s.log.Debug().Str("reminder_id", n.ReminderID).Str("owner_id", n.OwnerID).Int("attempts", attempt).
				Msg("notification delivered")
			return
		}
		lastErr = err

		if attempt >= maxAttempts {
			break
		}
		delay := backoffDelay(s.cfg, attempt)
		s.log.Debug().Str("reminder_id", n.ReminderID).Int("attempt", attempt+1).Dur("delay", delay).Err(err).
			Msg("delivery retry scheduled")
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return
		case <-tmr.C:
		}
	}

	s.log.Warn().Str("reminder_id", n.ReminderID).Str("owner_id", n.OwnerID).Int("attempts", maxAttempts).
		Err(lastErr).Msg("notification delivery failed")
}

func (s *Service) appendHistory(n Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ReminderID: n.ReminderID, OwnerID: n.OwnerID})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func backoffDelay(cfg Config, retry int) time.Duration {
	// retry starts at 1 (first retry); exponential growth with jitter.
	d := cfg.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// jitter [0.8, 1.2]
	d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*0.2))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}
