package config

import "time"

// Config is the full process configuration, loaded from YAML.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Lock      LockConfig      `yaml:"lock"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bot       BotConfig       `yaml:"bot"`
}

type TelegramConfig struct {
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

type StorageConfig struct {
	Driver      string   `yaml:"driver"`
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
}

// LockConfig surfaces the guild lock knobs; the retry cadence and budget
// are deliberately configuration, not constants.
type LockConfig struct {
	RetryDelay Duration `yaml:"retry_delay"`
	Budget     Duration `yaml:"budget"`
	TTL        Duration `yaml:"ttl"`
}

type SchedulerConfig struct {
	LookAhead      Duration `yaml:"look_ahead"`
	ReconcileEvery Duration `yaml:"reconcile_every"`
	NotifyPerSec   int      `yaml:"notify_per_sec"`
}

type LoggingConfig struct {
	Level   string        `yaml:"level"`
	Console bool          `yaml:"console"`
	File    LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type BotConfig struct {
	DefaultPrefix string `yaml:"default_prefix"`
}

// Default returns the built-in configuration a missing file or missing
// fields fall back to.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:      "sqlite",
			Path:        "./data/schedbot.db",
			BusyTimeout: Duration(5 * time.Second),
		},
		Lock: LockConfig{
			RetryDelay: Duration(50 * time.Millisecond),
			Budget:     Duration(5 * time.Second),
			TTL:        Duration(30 * time.Second),
		},
		Scheduler: SchedulerConfig{
			LookAhead:      Duration(2 * time.Hour),
			ReconcileEvery: Duration(time.Hour),
			NotifyPerSec:   1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Bot: BotConfig{
			DefaultPrefix: "+",
		},
	}
}
