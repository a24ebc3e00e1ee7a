package scheduler

import (
	"context"
	"sync"

	"waterminder/internal/reminder"
)

// mockStore implements Store for testing, backed by a plain map.
type mockStore struct {
	mu        sync.Mutex
	rows      map[string]reminder.Reminder
	loadErr   error
	removed   []string
	removeErr error
}

func newMockStore(rs ...reminder.Reminder) *mockStore {
	m := &mockStore{rows: map[string]reminder.Reminder{}}
	for _, r := range rs {
		m.rows[r.ID] = r
	}
	return m
}

func (m *mockStore) LoadAll(context.Context) ([]reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]reminder.Reminder, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) Get(_ context.Context, id string) (*reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, reminder.ErrNotFound
	}
	return &r, nil
}

func (m *mockStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.rows, id)
	m.removed = append(m.removed, id)
	return nil
}

func (m *mockStore) put(r reminder.Reminder) {
	m.mu.Lock()
	m.rows[r.ID] = r
	m.mu.Unlock()
}

func (m *mockStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}

func (m *mockStore) deleteRow(id string) {
	m.mu.Lock()
	delete(m.rows, id)
	m.mu.Unlock()
}

// mockSink implements Sink and records every delivery.
type mockSink struct {
	mu         sync.Mutex
	delivered  []reminder.Reminder
	deliverErr error
}

func (m *mockSink) Deliver(_ context.Context, r reminder.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, r)
	return m.deliverErr
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

func (m *mockSink) last() reminder.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delivered[len(m.delivered)-1]
}
