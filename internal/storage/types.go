package storage

import (
	"context"
	"errors"
	"time"

	"schedbot/internal/calendar"
)

// ErrNoCalendar is returned by FindCalendar when the guild has no calendar
// document.
var ErrNoCalendar = errors.New("calendar not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": process-local store, used by tests
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API for calendar documents plus the lease table
// backing the guild lock. One document per guild, keyed by guild ID.
type Store interface {
	FindCalendar(ctx context.Context, guildID string) (*calendar.Calendar, error)
	SaveCalendar(ctx context.Context, cal *calendar.Calendar) error
	DeleteCalendar(ctx context.Context, guildID string) error
	// ListGuildIDs returns every guild with a stored calendar; the
	// reconciliation loop iterates this set.
	ListGuildIDs(ctx context.Context) ([]string, error)

	LeaseStore

	Close() error
}

// LeaseStore is the shared-store primitive under the guild lock: an atomic
// claim of a per-guild key with an expiry, and a holder-scoped release.
type LeaseStore interface {
	// TryAcquireLease claims the guild's lease for holder if it is free or
	// expired. Reports whether the claim succeeded.
	TryAcquireLease(ctx context.Context, guildID, holder string, ttl time.Duration) (bool, error)
	// ReleaseLease drops the lease if holder still owns it.
	ReleaseLease(ctx context.Context, guildID, holder string) error
}
