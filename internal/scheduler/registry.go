package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrPastFireTime is returned by Install when the requested instant is not
// strictly in the future. It indicates a calculator or orchestration bug:
// callers skip the reminder and log rather than retry.
var ErrPastFireTime = errors.New("fire time is not in the future")

// Registry owns the id -> live timer handle table and the invariant that at
// most one handle exists per reminder id. Timers come from an injected
// clock so tests can drive time deterministically.
type Registry struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[string]*entry
	// seq stamps every install; a fire callback holding a stale sequence
	// lost a race to a cancel or replacement and must not run.
	seq uint64
}

type entry struct {
	seq    uint64
	fireAt time.Time
	timer  *clock.Timer
}

func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clk:     clk,
		entries: map[string]*entry{},
	}
}

// Install creates a one-shot timer that invokes onFire at fireAt, replacing
// (and cancelling) any prior handle for the id. The registry entry is
// consumed by the fire: a recurring reminder is re-installed by the caller
// after each fire.
func (g *Registry) Install(id string, fireAt time.Time, onFire func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	if !fireAt.After(now) {
		return fmt.Errorf("%w: %s at %s", ErrPastFireTime, id, fireAt.Format(time.RFC3339))
	}

	if old, ok := g.entries[id]; ok {
		old.timer.Stop()
	}

	g.seq++
	seq := g.seq
	e := &entry{seq: seq, fireAt: fireAt}
	e.timer = g.clk.AfterFunc(fireAt.Sub(now), func() {
		g.mu.Lock()
		cur, ok := g.entries[id]
		if !ok || cur.seq != seq {
			// Cancelled or replaced after this timer expired; discard.
			g.mu.Unlock()
			return
		}
		delete(g.entries, id)
		g.mu.Unlock()

		// Run outside the lock so onFire can never deadlock against
		// concurrent Install/Cancel calls.
		onFire()
	})
	g.entries[id] = e
	return nil
}

// Cancel stops and removes the handle for id. It reports whether a handle
// existed; cancelling an unknown id is a no-op. A fire that has not yet
// acquired the registry lock when Cancel completes will be discarded.
func (g *Registry) Cancel(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(g.entries, id)
	return true
}

// Has reports whether a live handle exists for id.
func (g *Registry) Has(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[id]
	return ok
}

// Len returns the number of live handles.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// CancelAll stops every timer and empties the table.
func (g *Registry) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, e := range g.entries {
		e.timer.Stop()
		delete(g.entries, id)
	}
}

// Snapshot lists the live entries ordered by next fire time.
func (g *Registry) Snapshot() []TaskInfo {
	g.mu.Lock()
	out := make([]TaskInfo, 0, len(g.entries))
	for id, e := range g.entries {
		out = append(out, TaskInfo{ReminderID: id, NextFireAt: e.fireAt})
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NextFireAt.Before(out[j].NextFireAt) })
	return out
}
