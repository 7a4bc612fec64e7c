package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"schedbot/internal/calendar"
	"schedbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Calendars ----

func (s *sqliteStore) FindCalendar(ctx context.Context, guildID string) (*calendar.Calendar, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM calendars WHERE guild_id = ?`, guildID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCalendar
	}
	if err != nil {
		return nil, err
	}

	var cal calendar.Calendar
	if err := json.Unmarshal([]byte(doc), &cal); err != nil {
		return nil, fmt.Errorf("decode calendar %s: %w", guildID, err)
	}
	return &cal, nil
}

func (s *sqliteStore) SaveCalendar(ctx context.Context, cal *calendar.Calendar) error {
	doc, err := json.Marshal(cal)
	if err != nil {
		return fmt.Errorf("encode calendar %s: %w", cal.GuildID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO calendars (guild_id, doc, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(guild_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
			cal.GuildID, string(doc), now,
		)
		return err
	})
}

func (s *sqliteStore) DeleteCalendar(ctx context.Context, guildID string) error {
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM calendars WHERE guild_id = ?`, guildID)
		return err
	})
}

func (s *sqliteStore) ListGuildIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM calendars ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- Leases ----

// TryAcquireLease claims the guild's lease row if it is free, expired, or
// already held by the same holder (renewal). The conditional upsert makes
// the check-and-claim atomic; RowsAffected tells us whether we won.
func (s *sqliteStore) TryAcquireLease(ctx context.Context, guildID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	expires := time.Now().Add(ttl).UnixMilli()

	var claimed bool
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO leases (guild_id, holder, expires_at) VALUES (?, ?, ?)
			 ON CONFLICT(guild_id) DO UPDATE SET
			   holder = excluded.holder,
			   expires_at = excluded.expires_at
			 WHERE leases.expires_at < ? OR leases.holder = excluded.holder`,
			guildID, holder, expires, now,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n > 0
		return nil
	})
	return claimed, err
}

func (s *sqliteStore) ReleaseLease(ctx context.Context, guildID, holder string) error {
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM leases WHERE guild_id = ? AND holder = ?`, guildID, holder)
		return err
	})
}
