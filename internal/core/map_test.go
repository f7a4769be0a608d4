package core

import (
	"testing"
	"time"

	"nudgeloop/internal/config"
	"nudgeloop/internal/storage"
	logx "nudgeloop/pkg/logx"
)

func TestSchedulerConfigMapping(t *testing.T) {
	t.Parallel()
	got := schedulerConfig(config.SchedulerConfig{
		Enabled:    true,
		RearmDelay: "1500ms",
		TriggerTTL: "2s",
	})
	if !got.Enabled || got.RearmDelay != 1500*time.Millisecond || got.TriggerTTL != 2*time.Second {
		t.Fatalf("schedulerConfig = %+v", got)
	}

	// Empty durations map to zero; the service fills its own defaults.
	got = schedulerConfig(config.SchedulerConfig{Enabled: true})
	if got.RearmDelay != 0 || got.TriggerTTL != 0 {
		t.Fatalf("schedulerConfig with empty durations = %+v", got)
	}
}

func TestNotifierConfigMapping(t *testing.T) {
	t.Parallel()
	if got := notifierConfig(nil); !got.Enabled {
		t.Fatalf("omitted notifier section must default to enabled, got %+v", got)
	}
	got := notifierConfig(&config.NotifierConfig{Enabled: true, Workers: 3, RatePerSec: 5, SendTimeout: "3s"})
	if got.Workers != 3 || got.RatePerSec != 5 || got.SendTimeout != 3*time.Second {
		t.Fatalf("notifierConfig = %+v", got)
	}
}

func TestStorageConfigMapping(t *testing.T) {
	t.Parallel()
	if got := storageConfig(nil); got != (storage.Config{}) {
		t.Fatalf("nil storage section = %+v", got)
	}
	got := storageConfig(&config.StorageConfig{Driver: " sqlite ", Path: " ./n.db ", BusyTimeout: "250ms"})
	if got.Driver != "sqlite" || got.Path != "./n.db" || got.BusyTimeout != 250*time.Millisecond {
		t.Fatalf("storageConfig = %+v", got)
	}
}

func TestChannelName(t *testing.T) {
	t.Parallel()
	if channelName(nil) != "desktop" {
		t.Fatal("nil section must default to desktop")
	}
	if channelName(&config.NotifierConfig{Channel: " Telegram "}) != "telegram" {
		t.Fatal("channel name not normalized")
	}
}

func TestBuildAdapter(t *testing.T) {
	t.Parallel()
	ad, perm, err := buildAdapter(&config.NotifierConfig{Channel: "desktop"}, logx.Nop())
	if err != nil || ad == nil || perm == nil {
		t.Fatalf("buildAdapter(desktop) = %v, %v, %v", ad, perm, err)
	}
	if ad.Name() != "desktop" {
		t.Fatalf("adapter name = %q", ad.Name())
	}

	if _, _, err := buildAdapter(&config.NotifierConfig{Channel: "telegram"}, logx.Nop()); err == nil {
		t.Fatal("telegram channel without section accepted")
	}
	if _, _, err := buildAdapter(&config.NotifierConfig{Channel: "smoke-signal"}, logx.Nop()); err == nil {
		t.Fatal("unknown channel accepted")
	}
}
