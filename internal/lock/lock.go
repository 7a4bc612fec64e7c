// Package lock serializes calendar mutations per guild. The lock is a lease
// row in the shared store: each Acquire spins on an atomic claim-with-expiry
// until it wins or a wall-clock budget runs out. The lease TTL unblocks
// other holders if the owning process crashes without releasing.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/storage"
	"schedbot/pkg/logx"
)

// ErrLockTimeout is returned when a lease could not be obtained within the
// configured budget. Callers must abandon the operation; no mutation may
// happen without the lease.
var ErrLockTimeout = errors.New("guild lock: acquire timed out")

// Config makes the retry cadence and deadline explicit rather than burying
// them as constants.
type Config struct {
	RetryDelay time.Duration // pause between claim attempts
	Budget     time.Duration // wall-clock limit for one Acquire call
	TTL        time.Duration // lease expiry, bounds how long a crashed holder blocks others
}

func (c Config) withDefaults() Config {
	if c.RetryDelay <= 0 {
		c.RetryDelay = 50 * time.Millisecond
	}
	if c.Budget <= 0 {
		c.Budget = 5 * time.Second
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}

// Locker hands out guild leases backed by a LeaseStore.
type Locker struct {
	store storage.LeaseStore
	cfg   Config
	log   logx.Logger
}

func New(store storage.LeaseStore, cfg Config, log logx.Logger) *Locker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Locker{store: store, cfg: cfg.withDefaults(), log: log}
}

// Lease is a held guild lock. Release it on every exit path.
type Lease struct {
	GuildID string
	holder  string
	locker  *Locker
}

// Acquire blocks until the guild's lease is claimed, the budget elapses
// (ErrLockTimeout), or ctx is done. Each attempt is an atomic claim against
// the shared store; between attempts the goroutine sleeps RetryDelay rather
// than busy-spinning.
func (l *Locker) Acquire(ctx context.Context, guildID string) (*Lease, error) {
	holder := uuid.NewString()
	deadline := time.Now().Add(l.cfg.Budget)

	for {
		ok, err := l.store.TryAcquireLease(ctx, guildID, holder, l.cfg.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{GuildID: guildID, holder: holder, locker: l}, nil
		}
		if time.Now().After(deadline) {
			l.log.Warn("lock acquire timed out",
				logx.String("guild", guildID),
				logx.Duration("budget", l.cfg.Budget))
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryDelay):
		}
	}
}

// Release relinquishes the lease. Safe to call once on any exit path; a
// lease that already expired releases as a no-op.
func (le *Lease) Release(ctx context.Context) error {
	return le.locker.store.ReleaseLease(ctx, le.GuildID, le.holder)
}
