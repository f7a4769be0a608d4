package config

import (
	"fmt"
	"strings"
	"time"

	"nudgeloop/internal/nudge"
)

// Validate rejects configurations that would fail at wiring time, so a bad
// hot-reload is refused instead of half-applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("scheduler.rearm_delay", cfg.Scheduler.RearmDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.trigger_ttl", cfg.Scheduler.TriggerTTL); err != nil {
		return err
	}

	if s := cfg.Storage; s != nil {
		switch d := strings.ToLower(strings.TrimSpace(s.Driver)); d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required for driver %q", d)
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if n := cfg.Notifier; n != nil && n.Enabled {
		switch ch := strings.ToLower(strings.TrimSpace(n.Channel)); ch {
		case "", "desktop":
		case "telegram":
			if n.Telegram == nil || strings.TrimSpace(n.Telegram.Token) == "" || n.Telegram.ChatID == 0 {
				return fmt.Errorf("notifier.telegram: token and chat_id are required for the telegram channel")
			}
		default:
			return fmt.Errorf("notifier.channel: unknown channel %q", n.Channel)
		}
		if _, err := ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
			return err
		}
		if n.Telegram != nil {
			if _, err := ParseDurationField("notifier.telegram.timeout", n.Telegram.Timeout); err != nil {
				return err
			}
		}
	}

	if d := cfg.Digest; d != nil && d.Enabled {
		if at := strings.TrimSpace(d.At); at != "" {
			if _, _, err := nudge.ParseHHMM(at); err != nil {
				return fmt.Errorf("digest.at: %w", err)
			}
		}
	}

	return nil
}
