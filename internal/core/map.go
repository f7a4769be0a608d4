package core

import (
	"strings"
	"time"

	"nudgeloop/internal/config"
	"nudgeloop/internal/services/digest"
	"nudgeloop/internal/services/notify"
	"nudgeloop/internal/services/scheduler"
	"nudgeloop/internal/storage"
)

// Mapping from the config file shape to per-service configs. Duration strings
// were validated by config.Validate, so parse errors here fall back to the
// service defaults.

func storageConfig(c *config.StorageConfig) storage.Config {
	if c == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	return storage.Config{
		Driver:      strings.TrimSpace(c.Driver),
		Path:        strings.TrimSpace(c.Path),
		BusyTimeout: busy,
	}
}

func schedulerConfig(c config.SchedulerConfig) scheduler.Config {
	rearm, _ := config.ParseDurationField("scheduler.rearm_delay", c.RearmDelay)
	ttl, _ := config.ParseDurationField("scheduler.trigger_ttl", c.TriggerTTL)
	return scheduler.Config{
		Enabled:    c.Enabled,
		RearmDelay: rearm,
		TriggerTTL: ttl,
	}
}

func notifierConfig(c *config.NotifierConfig) notify.Config {
	if c == nil {
		// Omitted section means enabled with defaults.
		return notify.Config{Enabled: true}
	}
	timeout, _ := config.ParseDurationField("notifier.send_timeout", c.SendTimeout)
	return notify.Config{
		Enabled:     c.Enabled,
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		RatePerSec:  c.RatePerSec,
		SendTimeout: timeout,
	}
}

func digestConfig(c *config.DigestConfig) digest.Config {
	if c == nil {
		return digest.Config{}
	}
	return digest.Config{Enabled: c.Enabled, At: c.At}
}

func channelName(c *config.NotifierConfig) string {
	if c == nil {
		return "desktop"
	}
	ch := strings.ToLower(strings.TrimSpace(c.Channel))
	if ch == "" {
		return "desktop"
	}
	return ch
}

func telegramTimeout(c *config.TelegramConfig) time.Duration {
	if c == nil {
		return 0
	}
	d, _ := config.ParseDurationField("notifier.telegram.timeout", c.Timeout)
	return d
}
