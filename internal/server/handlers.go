package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"waterminder/internal/reminder"
	"waterminder/internal/scheduler"
)

type reminderRequest struct {
	TimeOfDay  string             `json:"time_of_day"`
	Frequency  reminder.Frequency `json:"frequency"`
	DaysOfWeek []time.Weekday     `json:"days_of_week,omitempty"`
	Message    string             `json:"message"`
}

type reminderResponse struct {
	Reminder reminder.Reminder `json:"reminder"`
	Status   scheduler.Outcome `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSchedulerz(w http.ResponseWriter, _ *http.Request) {
	tasks := s.sched.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(tasks),
		"tasks": tasks,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rem := &reminder.Reminder{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		TimeOfDay:  req.TimeOfDay,
		Frequency:  req.Frequency,
		DaysOfWeek: req.DaysOfWeek,
		Message:    req.Message,
		CreatedAt:  time.Now(),
	}
	if err := rem.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Insert(r.Context(), rem); err != nil {
		s.log.Error().Err(err).Msg("insert reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to persist reminder")
		return
	}

	outcome, err := s.sched.Create(r.Context(), rem)
	if err != nil {
		s.log.Error().Str("reminder_id", rem.ID).Err(err).Msg("schedule reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to schedule reminder")
		return
	}

	// An already-past one-shot is accepted but finalized immediately; the
	// caller learns this from the status instead of an error.
	status := http.StatusCreated
	if outcome == scheduler.OutcomeExpired {
		status = http.StatusOK
	}
	writeJSON(w, status, reminderResponse{Reminder: *rem, Status: outcome})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	list, err := s.store.ListByOwner(r.Context(), owner)
	if err != nil {
		s.log.Error().Err(err).Msg("list reminders failed")
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if list == nil {
		list = []reminder.Reminder{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	rem, ok := s.fetchOwned(w, r, owner)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	existing, ok := s.fetchOwned(w, r, owner)
	if !ok {
		return
	}

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rem := &reminder.Reminder{
		ID:         existing.ID,
		OwnerID:    existing.OwnerID,
		TimeOfDay:  req.TimeOfDay,
		Frequency:  req.Frequency,
		DaysOfWeek: req.DaysOfWeek,
		Message:    req.Message,
		CreatedAt:  existing.CreatedAt,
	}
	if err := rem.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist first so a fire between row update and timer swap re-reads
	// the new definition, never the old one.
	if err := s.store.Update(r.Context(), rem); err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reminder not found")
			return
		}
		s.log.Error().Str("reminder_id", rem.ID).Err(err).Msg("update reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to persist reminder")
		return
	}

	outcome, err := s.sched.Update(r.Context(), rem)
	if err != nil {
		s.log.Error().Str("reminder_id", rem.ID).Err(err).Msg("reschedule reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to reschedule reminder")
		return
	}
	writeJSON(w, http.StatusOK, reminderResponse{Reminder: *rem, Status: outcome})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	existing, err := s.store.Get(r.Context(), id)
	if errors.Is(err, reminder.ErrNotFound) {
		// Deleting an unknown reminder is a no-op.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.log.Error().Str("reminder_id", id).Err(err).Msg("load reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to load reminder")
		return
	}
	if existing.OwnerID != owner {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}

	if err := s.sched.Delete(r.Context(), id); err != nil {
		s.log.Error().Str("reminder_id", id).Err(err).Msg("delete reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fetchOwned loads the path reminder and enforces ownership. A reminder
// owned by someone else is indistinguishable from a missing one.
func (s *Server) fetchOwned(w http.ResponseWriter, r *http.Request, owner string) (*reminder.Reminder, bool) {
	id := chi.URLParam(r, "id")
	rem, err := s.store.Get(r.Context(), id)
	if errors.Is(err, reminder.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reminder not found")
		return nil, false
	}
	if err != nil {
		s.log.Error().Str("reminder_id", id).Err(err).Msg("load reminder failed")
		writeError(w, http.StatusInternalServerError, "failed to load reminder")
		return nil, false
	}
	if rem.OwnerID != owner {
		writeError(w, http.StatusNotFound, "reminder not found")
		return nil, false
	}
	return rem, true
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get(ownerHeader))
	if owner == "" {
		writeError(w, http.StatusBadRequest, ownerHeader+" header is required")
		return "", false
	}
	return owner, true
}
