package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterminder/internal/reminder"
	"waterminder/internal/scheduler"
	"waterminder/internal/storage"
)

// Wednesday, so weekly day math is easy to follow.
var testNow = time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

type captureSink struct {
	mu        sync.Mutex
	delivered []reminder.Reminder
}

func (s *captureSink) Deliver(_ context.Context, r reminder.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, r)
	return nil
}

type fixture struct {
	srv   *Server
	store *storage.Store
	sched *scheduler.Service
	clk   *clock.Mock
	sink  *captureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "reminders.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewMock()
	clk.Set(testNow)
	sink := &captureSink{}
	sched := scheduler.New(scheduler.Config{Timezone: "UTC"}, st, sink, clk, zerolog.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Stop(ctx)
	})

	return &fixture{
		srv:   New("127.0.0.1:0", st, sched, zerolog.Nop()),
		store: st,
		sched: sched,
		clk:   clk,
		sink:  sink,
	}
}

func (f *fixture) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeReminderResponse(t *testing.T, rec *httptest.ResponseRecorder) reminderResponse {
	t.Helper()
	var resp reminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateDaily(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "drink water",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeReminderResponse(t, rec)
	assert.Equal(t, scheduler.OutcomeScheduled, resp.Status)
	assert.NotEmpty(t, resp.Reminder.ID)
	assert.Equal(t, "7", resp.Reminder.OwnerID)

	// persisted
	got, err := f.store.Get(context.Background(), resp.Reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, "drink water", got.Message)

	// live timer for tomorrow 08:00
	require.True(t, f.sched.Has(resp.Reminder.ID))
	snap := f.sched.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, time.Date(2024, time.March, 14, 8, 0, 0, 0, time.UTC), snap[0].NextFireAt)
}

func TestCreateRequiresOwnerHeader(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/reminders", "", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRejectsInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "25:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyWeekly,
		Message:   "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "weekly without days")

	list, err := f.store.ListByOwner(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateExpiredOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// 09:00 is already past at the fixture's 10:00 clock.
	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "09:00",
		Frequency: reminder.FrequencyOnce,
		Message:   "too late",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeReminderResponse(t, rec)
	assert.Equal(t, scheduler.OutcomeExpired, resp.Status)
	assert.False(t, f.sched.Has(resp.Reminder.ID))

	_, err := f.store.Get(context.Background(), resp.Reminder.ID)
	assert.ErrorIs(t, err, reminder.ErrNotFound)
}

func TestListScopedToOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, owner := range []string{"7", "7", "8"} {
		rec := f.do(t, http.MethodPost, "/reminders", owner, reminderRequest{
			TimeOfDay: "08:00",
			Frequency: reminder.FrequencyDaily,
			Message:   "m",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/reminders", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []reminder.Reminder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestGetOtherOwnersReminderIsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeReminderResponse(t, rec).Reminder.ID

	rec = f.do(t, http.MethodGet, "/reminders/"+id, "8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/reminders/"+id, "7", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateReplacesSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeReminderResponse(t, rec).Reminder.ID

	rec = f.do(t, http.MethodPut, "/reminders/"+id, "7", reminderRequest{
		TimeOfDay: "11:30",
		Frequency: reminder.FrequencyDaily,
		Message:   "more water",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "11:30", got.TimeOfDay)
	assert.Equal(t, "more water", got.Message)

	// 11:30 is still ahead today, so the timer moved to the same day.
	snap := f.sched.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, time.Date(2024, time.March, 13, 11, 30, 0, 0, time.UTC), snap[0].NextFireAt)
}

func TestUpdateUnknownID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/reminders/nope", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeReminderResponse(t, rec).Reminder.ID

	rec = f.do(t, http.MethodDelete, "/reminders/"+id, "7", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.sched.Has(id))
	_, err := f.store.Get(context.Background(), id)
	assert.ErrorIs(t, err, reminder.ErrNotFound)

	rec = f.do(t, http.MethodDelete, "/reminders/"+id, "7", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteOtherOwnersReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeReminderResponse(t, rec).Reminder.ID

	rec = f.do(t, http.MethodDelete, "/reminders/"+id, "8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, f.sched.Has(id))
}

func TestSchedulerz(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "08:00",
		Frequency: reminder.FrequencyDaily,
		Message:   "m",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/schedulerz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int                  `json:"count"`
		Tasks []scheduler.TaskInfo `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Tasks, 1)
}

func TestFiredReminderDelivers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/reminders", "7", reminderRequest{
		TimeOfDay: "10:30",
		Frequency: reminder.FrequencyOnce,
		Message:   "hydrate",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeReminderResponse(t, rec).Reminder.ID

	f.clk.Add(30 * time.Minute)

	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.delivered) == 1
	}, time.Second, time.Millisecond)

	f.sink.mu.Lock()
	delivered := f.sink.delivered[0]
	f.sink.mu.Unlock()
	assert.Equal(t, id, delivered.ID)
	assert.Equal(t, "hydrate", delivered.Message)

	// one-shot is finalized after firing
	require.Eventually(t, func() bool {
		_, err := f.store.Get(context.Background(), id)
		return err != nil
	}, time.Second, time.Millisecond)
}
