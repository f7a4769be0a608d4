package config

import (
	"reflect"
	"sort"
	"strings"

	logx "nudgeloop/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (telegram token) are never included,
// only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.rearm_delay", strings.TrimSpace(newCfg.Scheduler.RearmDelay)),
			logx.String("scheduler.trigger_ttl", strings.TrimSpace(newCfg.Scheduler.TriggerTTL)),
		)
	}

	oldS := derefStorage(oldCfg.Storage)
	newS := derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	oldN := derefNotifier(oldCfg.Notifier)
	newN := derefNotifier(newCfg.Notifier)
	if !reflect.DeepEqual(oldN, newN) {
		changed = append(changed, "notifier")
		tokenSet := newN.Telegram != nil && strings.TrimSpace(newN.Telegram.Token) != ""
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.String("notifier.channel", strings.TrimSpace(newN.Channel)),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Bool("notifier.telegram_token_set", tokenSet),
		)
	}

	oldD := derefDigest(oldCfg.Digest)
	newD := derefDigest(newCfg.Digest)
	if oldD != newD {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newD.Enabled),
			logx.String("digest.at", strings.TrimSpace(newD.At)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		// Omitted section means the runtime default, so a reload that adds the
		// explicit equivalent is not a change.
		return NotifierConfig{Enabled: true, Channel: "desktop"}
	}
	out := *n
	if strings.TrimSpace(out.Channel) == "" {
		out.Channel = "desktop"
	}
	return out
}

func derefDigest(d *DigestConfig) DigestConfig {
	if d == nil {
		return DigestConfig{}
	}
	return *d
}
