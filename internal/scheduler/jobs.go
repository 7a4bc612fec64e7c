package scheduler

import (
	"sync"
	"time"
)

// jobMap holds at most one live timer per event ID. Install is
// only-if-absent, which is the whole idempotency story: re-running
// scheduling for an event that already has a timer is a no-op.
//
// Entries are removed only through cancel/cancelAll, never by the timer
// firing. A fired entry keeps occupying its slot so reconciliation cannot
// re-install a timer for a notification that already went out; the slot is
// freed when the event is unscheduled or rescheduled.
type jobMap struct {
	mu   sync.Mutex
	jobs map[string]*time.Timer
}

func newJobMap() *jobMap {
	return &jobMap{jobs: map[string]*time.Timer{}}
}

// install arms a timer for the event unless one is already present.
// Reports whether a new timer was installed.
func (m *jobMap) install(eventID string, delay time.Duration, fn func()) bool {
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[eventID]; ok {
		return false
	}
	m.jobs[eventID] = time.AfterFunc(delay, fn)
	return true
}

// cancel stops and removes the event's timer. Best-effort: a callback that
// already started running cannot be stopped retroactively.
func (m *jobMap) cancel(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.jobs[eventID]
	if !ok {
		return false
	}
	t.Stop()
	delete(m.jobs, eventID)
	return true
}

func (m *jobMap) has(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[eventID]
	return ok
}

func (m *jobMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *jobMap) cancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.jobs {
		t.Stop()
		delete(m.jobs, id)
	}
}
