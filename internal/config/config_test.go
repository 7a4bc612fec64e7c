package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "telegram:\n  token: \"123:abc\"\n")

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path == "" {
		t.Fatalf("storage defaults missing: %+v", cfg.Storage)
	}
	if cfg.Lock.RetryDelay.Std() != 50*time.Millisecond || cfg.Lock.Budget.Std() != 5*time.Second {
		t.Fatalf("lock defaults missing: %+v", cfg.Lock)
	}
	if cfg.Scheduler.LookAhead.Std() != 2*time.Hour || cfg.Scheduler.ReconcileEvery.Std() != time.Hour {
		t.Fatalf("scheduler defaults missing: %+v", cfg.Scheduler)
	}
	if cfg.Bot.DefaultPrefix != "+" {
		t.Fatalf("default prefix = %q", cfg.Bot.DefaultPrefix)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  poll_timeout: 15s
lock:
  retry_delay: 25ms
  budget: 2s
  ttl: 1m
scheduler:
  look_ahead: 4h
  reconcile_every: 30m
  notify_per_sec: 5
bot:
  default_prefix: "!"
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Telegram.PollTimeout.Std() != 15*time.Second {
		t.Fatalf("poll_timeout = %v", cfg.Telegram.PollTimeout)
	}
	if cfg.Lock.RetryDelay.Std() != 25*time.Millisecond ||
		cfg.Lock.Budget.Std() != 2*time.Second ||
		cfg.Lock.TTL.Std() != time.Minute {
		t.Fatalf("lock = %+v", cfg.Lock)
	}
	if cfg.Scheduler.LookAhead.Std() != 4*time.Hour ||
		cfg.Scheduler.ReconcileEvery.Std() != 30*time.Minute ||
		cfg.Scheduler.NotifyPerSec != 5 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Bot.DefaultPrefix != "!" {
		t.Fatalf("prefix = %q", cfg.Bot.DefaultPrefix)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "telegram:\n  tokne: \"typo\"\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml")).Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDurationYAML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"50ms", 50 * time.Millisecond},
		{"5s", 5 * time.Second},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		path := writeConfig(t, "lock:\n  budget: "+tt.raw+"\n")
		cfg, err := NewManager(path).Load()
		if err != nil {
			t.Fatalf("Load(%q) error: %v", tt.raw, err)
		}
		if cfg.Lock.Budget.Std() != tt.want {
			t.Fatalf("budget = %v, want %v", cfg.Lock.Budget.Std(), tt.want)
		}
	}

	path := writeConfig(t, "lock:\n  budget: notaduration\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "bot:\n  default_prefix: \"+\"\n")

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	updates := m.Subscribe(1)

	stop := make(chan struct{})
	defer close(stop)
	go func() { _ = m.Watch(stop) }()
	time.Sleep(50 * time.Millisecond) // let the watcher attach

	if err := os.WriteFile(path, []byte("bot:\n  default_prefix: \"!\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		if cfg.Bot.DefaultPrefix != "!" {
			t.Fatalf("reloaded prefix = %q, want %q", cfg.Bot.DefaultPrefix, "!")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	if m.Get().Bot.DefaultPrefix != "!" {
		t.Fatal("committed config not updated")
	}
}

func TestWatchKeepsPreviousConfigOnBadReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "bot:\n  default_prefix: \"+\"\n")

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() { _ = m.Watch(stop) }()
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("bot:\n  no_such_field: 1\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if m.Get().Bot.DefaultPrefix != "+" {
		t.Fatal("broken reload replaced the committed config")
	}
}
