// Package server exposes the reminder CRUD API over HTTP.
//
// Every reminder route is scoped to the caller identified by the X-User-ID
// header; a reminder is only visible to its owner.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"

	"waterminder/internal/reminder"
	"waterminder/internal/scheduler"
)

const ownerHeader = "X-User-ID"

// Store is the persistence surface the handlers need.
type Store interface {
	Insert(ctx context.Context, r *reminder.Reminder) error
	Update(ctx context.Context, r *reminder.Reminder) error
	Get(ctx context.Context, id string) (*reminder.Reminder, error)
	ListByOwner(ctx context.Context, ownerID string) ([]reminder.Reminder, error)
}

// Scheduler is the scheduling surface the handlers need.
type Scheduler interface {
	Create(ctx context.Context, r *reminder.Reminder) (scheduler.Outcome, error)
	Update(ctx context.Context, r *reminder.Reminder) (scheduler.Outcome, error)
	Delete(ctx context.Context, id string) error
	Snapshot() []scheduler.TaskInfo
}

type Server struct {
	log   zerolog.Logger
	store Store
	sched Scheduler
	http  *http.Server
}

func New(listen string, store Store, sched Scheduler, log zerolog.Logger) *Server {
	s := &Server{
		log:   log.With().Str("component", "http").Logger(),
		store: store,
		sched: sched,
	}
	s.http = &http.Server{
		Addr:              listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/schedulerz", s.handleSchedulerz)

	r.Route("/reminders", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

// Start begins serving and returns immediately. Listen errors other than a
// clean shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
