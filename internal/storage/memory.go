package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"schedbot/internal/calendar"
)

// Memory is an in-process Store used by tests and as a stand-in when no
// database is wanted. Calendars are deep-copied through JSON on the way in
// and out so callers never share the stored document.
type Memory struct {
	mu     sync.Mutex
	docs   map[string][]byte
	leases map[string]memLease
}

type memLease struct {
	holder  string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{
		docs:   map[string][]byte{},
		leases: map[string]memLease{},
	}
}

func (m *Memory) FindCalendar(_ context.Context, guildID string) (*calendar.Calendar, error) {
	m.mu.Lock()
	doc, ok := m.docs[guildID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoCalendar
	}
	var cal calendar.Calendar
	if err := json.Unmarshal(doc, &cal); err != nil {
		return nil, err
	}
	return &cal, nil
}

func (m *Memory) SaveCalendar(_ context.Context, cal *calendar.Calendar) error {
	doc, err := json.Marshal(cal)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[cal.GuildID] = doc
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteCalendar(_ context.Context, guildID string) error {
	m.mu.Lock()
	delete(m.docs, guildID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListGuildIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) TryAcquireLease(_ context.Context, guildID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leases[guildID]
	if ok && cur.holder != holder && cur.expires.After(now) {
		return false, nil
	}
	m.leases[guildID] = memLease{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) ReleaseLease(_ context.Context, guildID, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[guildID]; ok && cur.holder == holder {
		delete(m.leases, guildID)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
