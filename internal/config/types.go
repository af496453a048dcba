package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"todobot/internal/domain"
)

type Config struct {
	Discord  DiscordConfig   `json:"discord"`
	Logging  LoggingConfig   `json:"logging"`
	Storage  StorageConfig   `json:"storage"`
	Reminder ReminderConfig  `json:"reminder"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Pprof    *PprofConfig    `json:"pprof,omitempty"`
}

// PprofConfig controls the optional debug listener. Non-loopback binds
// require a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// GuildID scopes slash command registration to one guild, which updates
	// instantly. Empty registers commands globally.
	GuildID string `json:"guild_id,omitempty"`
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

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ReminderConfig controls the evaluation loop and the reminder policy.
//
// All durations are Go duration strings (e.g. "30s", "5m", "72h").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "1m"
//   - grace: "24h"
//   - send_timeout: "30s"
//   - offsets: 72h/24h/5h before the deadline
//   - default_timezone: "UTC"
type ReminderConfig struct {
	Enabled      *bool             `json:"enabled,omitempty"`
	TickInterval string            `json:"tick_interval,omitempty"`
	Grace        string            `json:"grace,omitempty"`
	SendTimeout  string            `json:"send_timeout,omitempty"`
	Offsets      map[string]string `json:"offsets,omitempty"`

	// DefaultTimezone applies to users who never ran settimezone.
	DefaultTimezone string `json:"default_timezone,omitempty"`

	Weekly WeeklyConfig `json:"weekly"`
}

// WeeklyConfig controls the weekly summary job.
type WeeklyConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Schedule accepts a cron expression ("0 20 * * 0"), an interval
	// ("24h") or a daily HH:MM. Default: Sunday 20:00.
	Schedule string `json:"schedule,omitempty"`
	// Timezone anchors both the schedule and the Monday..Saturday window.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the outbound send pipeline. If the whole section
// is omitted the notifier runs with defaults.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	Burst         int    `json:"burst,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// Validate checks the parts that would otherwise fail deep inside a service
// at runtime: the token, every duration string, zone names and offset tags.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("discord.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	r := c.Reminder
	for path, raw := range map[string]string{
		"reminder.tick_interval": r.TickInterval,
		"reminder.grace":         r.Grace,
		"reminder.send_timeout":  r.SendTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	for tag, raw := range r.Offsets {
		switch domain.StandardTag(tag) {
		case domain.Tag72h, domain.Tag24h, domain.Tag5h:
		default:
			return fmt.Errorf("reminder.offsets: unknown tag %q", tag)
		}
		d, err := ParseDurationField("reminder.offsets."+tag, raw)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("reminder.offsets.%s: must be positive", tag)
		}
	}
	for path, zone := range map[string]string{
		"reminder.default_timezone": r.DefaultTimezone,
		"reminder.weekly.timezone":  r.Weekly.Timezone,
	} {
		if strings.TrimSpace(zone) == "" {
			continue
		}
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("%s: unknown timezone %q", path, zone)
		}
	}

	if n := c.Notifier; n != nil {
		if n.RatePerSec < 0 || n.Burst < 0 || n.RetryMax < 0 {
			return errors.New("notifier: counts must be >= 0")
		}
		if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			return err
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
			return err
		}
	}
	return nil
}

// ReminderEnabled reports whether the evaluation loop should run. Omitted
// means enabled.
func (c *Config) ReminderEnabled() bool {
	return c.Reminder.Enabled == nil || *c.Reminder.Enabled
}

// WeeklyEnabled reports whether the weekly summary job should run.
func (c *Config) WeeklyEnabled() bool {
	return c.Reminder.Weekly.Enabled == nil || *c.Reminder.Weekly.Enabled
}

// OffsetDurations converts the configured offset strings into the rule set's
// form, overlaying the shipped defaults so a config may override a single
// tag. Returns nil, meaning all defaults, when nothing is configured.
func (c *Config) OffsetDurations() map[domain.StandardTag]time.Duration {
	if len(c.Reminder.Offsets) == 0 {
		return nil
	}
	out := map[domain.StandardTag]time.Duration{
		domain.Tag72h: 72 * time.Hour,
		domain.Tag24h: 24 * time.Hour,
		domain.Tag5h:  5 * time.Hour,
	}
	for tag, raw := range c.Reminder.Offsets {
		d, err := ParseDurationField("reminder.offsets."+tag, raw)
		if err != nil || d <= 0 {
			continue
		}
		out[domain.StandardTag(tag)] = d
	}
	return out
}
