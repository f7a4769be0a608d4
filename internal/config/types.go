package config

// Config is the daemon configuration. Accepted as JSON or YAML; unknown keys
// are rejected so typos surface at load time instead of silently doing
// nothing.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Digest    *DigestConfig   `json:"digest,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls persistence of the nudge collection.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nudges.json" }
//
// Nil or driver "none" keeps the collection in memory only.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls the timer engine.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone for evaluating fixed-time and hourly schedules.
	// Empty means the system local zone.
	Timezone string `json:"timezone,omitempty"`

	// RearmDelay is the post-fire window before a fired nudge is re-armed
	// against live collection state. Default "1s".
	RearmDelay string `json:"rearm_delay,omitempty"`

	// TriggerTTL is how long a fired nudge stays observable as the current
	// trigger. Default "1s".
	TriggerTTL string `json:"trigger_ttl,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
//
// If the whole section is omitted the notifier defaults to enabled with the
// desktop channel.
type NotifierConfig struct {
	Enabled bool `json:"enabled"`

	// Channel selects the delivery adapter: "desktop" (default) or "telegram".
	Channel string `json:"channel,omitempty"`

	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	Timeout string `json:"timeout,omitempty"`
}

// DigestConfig controls the daily summary.
type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// At is the local time of day the digest runs, "HH:MM". Default "21:00".
	At string `json:"at,omitempty"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{Enabled: true},
		Notifier:  &NotifierConfig{Enabled: true, Channel: "desktop"},
	}
}
