package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"todobot/internal/domain"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewManager(path)
}

const minimalYAML = `
discord:
  token: "abc"
logging:
  level: info
  console: true
storage:
  path: ./bot.db
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", minimalYAML+`
reminder:
  tick_interval: 30s
  grace: 12h
  offsets:
    5h: 6h
  default_timezone: Asia/Jakarta
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "abc" || cfg.Reminder.TickInterval != "30s" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := m.Get(); got != cfg {
		t.Error("Get should return the committed config")
	}
	if !cfg.ReminderEnabled() || !cfg.WeeklyEnabled() {
		t.Error("omitted enabled flags should read as enabled")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", minimalYAML+`
remindr:
  grace: 1h
`)
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("want unknown field error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing token", func(c *Config) { c.Discord.Token = " " }, "discord.token"},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad duration", func(c *Config) { c.Reminder.Grace = "soon" }, "reminder.grace"},
		{"unknown offset tag", func(c *Config) { c.Reminder.Offsets = map[string]string{"due": "1h"} }, "unknown tag"},
		{"zero offset", func(c *Config) { c.Reminder.Offsets = map[string]string{"5h": "0s"} }, "must be positive"},
		{"bad zone", func(c *Config) { c.Reminder.DefaultTimezone = "Mars/Olympus" }, "unknown timezone"},
		{"bad weekly zone", func(c *Config) { c.Reminder.Weekly.Timezone = "nope" }, "unknown timezone"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{
				Discord: DiscordConfig{Token: "abc"},
				Storage: StorageConfig{Path: "./bot.db"},
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}

	good := &Config{
		Discord: DiscordConfig{Token: "abc"},
		Storage: StorageConfig{Path: "./bot.db", BusyTimeout: "5s"},
		Reminder: ReminderConfig{
			TickInterval:    "1m",
			Grace:           "24h",
			Offsets:         map[string]string{"72h": "96h"},
			DefaultTimezone: "UTC",
		},
		Notifier: &NotifierConfig{RatePerSec: 5, RetryBase: "500ms", RetryMaxDelay: "10s"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestOffsetDurationsOverlaysDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	if cfg.OffsetDurations() != nil {
		t.Fatal("no configured offsets should return nil (all defaults)")
	}

	cfg.Reminder.Offsets = map[string]string{"24h": "36h"}
	got := cfg.OffsetDurations()
	want := map[domain.StandardTag]time.Duration{
		domain.Tag72h: 72 * time.Hour,
		domain.Tag24h: 36 * time.Hour,
		domain.Tag5h:  5 * time.Hour,
	}
	for tag, d := range want {
		if got[tag] != d {
			t.Errorf("%s = %v, want %v", tag, got[tag], d)
		}
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.json", `{"discord":{"token":"abc"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"storage":{"path":"./bot.db"},"reminder":{"weekly":{}}} {"extra":1}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("want trailing data error")
	}
}
