package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"scheduler": {"enabled": true, "timezone": "Europe/Berlin", "rearm_delay": "1s"},
		"storage": {"driver": "file", "path": "./nudges.json"},
		"notifier": {"enabled": true, "channel": "desktop", "rate_per_sec": 2},
		"digest": {"enabled": true, "at": "21:30"}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Scheduler.Enabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Digest == nil || cfg.Digest.At != "21:30" {
		t.Fatalf("digest = %+v", cfg.Digest)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
scheduler:
  enabled: true
  trigger_ttl: 1s
notifier:
  enabled: true
  channel: telegram
  telegram:
    token: "123:abc"
    chat_id: 42
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notifier == nil || cfg.Notifier.Channel != "telegram" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	if cfg.Notifier.Telegram == nil || cfg.Notifier.Telegram.ChatID != 42 {
		t.Fatalf("telegram = %+v", cfg.Notifier.Telegram)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"scheduler": {"enabled": true, "workres": 3}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("misspelled key accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(*Config) {}, false},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, true},
		{"bad rearm delay", func(c *Config) { c.Scheduler.RearmDelay = "fast" }, true},
		{"negative ttl", func(c *Config) { c.Scheduler.TriggerTTL = "-1s" }, true},
		{"storage without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, true},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis", Path: "x"} }, true},
		{"storage none", func(c *Config) { c.Storage = &StorageConfig{Driver: "none"} }, false},
		{"telegram without token", func(c *Config) {
			c.Notifier = &NotifierConfig{Enabled: true, Channel: "telegram"}
		}, true},
		{"unknown channel", func(c *Config) { c.Notifier = &NotifierConfig{Enabled: true, Channel: "carrier-pigeon"} }, true},
		{"bad digest time", func(c *Config) { c.Digest = &DigestConfig{Enabled: true, At: "25:99"} }, true},
		{"digest ok", func(c *Config) { c.Digest = &DigestConfig{Enabled: true, At: "08:00"} }, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate = %v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := Default()
	newCfg := Default()
	newCfg.Logging.Level = "debug"
	newCfg.Scheduler.Timezone = "UTC"

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "logging" || changed[1] != "scheduler" {
		t.Fatalf("changed = %v", changed)
	}

	// Omitted notifier section equals the runtime default, not a change.
	explicit := Default()
	explicit.Notifier = &NotifierConfig{Enabled: true, Channel: "desktop"}
	implicit := Default()
	implicit.Notifier = nil
	if changed, _ := SummarizeConfigChange(implicit, explicit); len(changed) != 0 {
		t.Fatalf("default-equivalent notifier reported as change: %v", changed)
	}
}

func TestAsJSON(t *testing.T) {
	t.Parallel()

	// Non-yaml paths pass through untouched.
	raw := []byte(`{"a":1}`)
	if got, err := asJSON("config.json", raw); err != nil || string(got) != string(raw) {
		t.Fatalf("asJSON(json) = %q, %v", got, err)
	}

	// YAML maps with non-string keys must survive the JSON round trip.
	j, err := asJSON("config.yaml", []byte("1: one\nnested:\n  2: two\n"))
	if err != nil {
		t.Fatalf("asJSON(yaml): %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(j, &v); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if v["1"] != "one" {
		t.Fatalf("integer key not stringified: %v", v)
	}

	if _, err := asJSON("config.yaml", []byte("a: [b\n")); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 1500ms "); err != nil || d.Milliseconds() != 1500 {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-2s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 42); err != nil || d != 42 {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}
