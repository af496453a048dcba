package storage

import (
	"context"
	"database/sql"

	"todobot/internal/domain"
)

// UserTimezone returns the user's configured IANA zone, or "" when the user
// never set one.
func (s *Store) UserTimezone(ctx context.Context, userID string) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone FROM user_settings WHERE user_id = ?`, userID).Scan(&tz)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tz, nil
}

// SetUserTimezone stores the user's zone, replacing any previous value.
func (s *Store) SetUserTimezone(ctx context.Context, userID, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, timezone) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone=excluded.timezone`,
		userID, tz)
	return err
}

// GuildSettingOf returns the guild's channel configuration. A guild with no
// row yields the zero setting, which suppresses all guild delivery.
func (s *Store) GuildSettingOf(ctx context.Context, guildID string) (domain.GuildSetting, error) {
	g := domain.GuildSetting{GuildID: guildID}
	err := s.db.QueryRowContext(ctx,
		`SELECT task_channel_id, event_channel_id FROM guild_settings WHERE guild_id = ?`,
		guildID).Scan(&g.TaskChannelID, &g.EventChannelID)
	if err == sql.ErrNoRows {
		return g, nil
	}
	if err != nil {
		return domain.GuildSetting{}, err
	}
	return g, nil
}

// ChannelFor resolves the delivery channel for one item class.
func (s *Store) ChannelFor(ctx context.Context, guildID string, kind domain.Kind) (string, error) {
	g, err := s.GuildSettingOf(ctx, guildID)
	if err != nil {
		return "", err
	}
	return g.ChannelFor(kind), nil
}

// SetGuildChannel points one item class at a channel. An empty channelID
// clears the setting and suppresses delivery for that class.
func (s *Store) SetGuildChannel(ctx context.Context, guildID string, kind domain.Kind, channelID string) error {
	column := "task_channel_id"
	if kind == domain.KindEvent {
		column = "event_channel_id"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings(guild_id, `+column+`) VALUES(?,?)
		 ON CONFLICT(guild_id) DO UPDATE SET `+column+`=excluded.`+column,
		guildID, channelID)
	return err
}
