package domain

// UserSetting maps a user to their preferred IANA timezone. The configured
// default zone applies when no row exists.
type UserSetting struct {
	UserID   string
	Timezone string
}

// GuildSetting maps a guild to its reminder destination channels, kept
// separately for the task and event classes. An empty channel id suppresses
// delivery for that class; there is no fallback channel.
type GuildSetting struct {
	GuildID        string
	TaskChannelID  string
	EventChannelID string
}

// ChannelFor returns the destination channel for the given item class, or ""
// when none is configured.
func (g *GuildSetting) ChannelFor(kind Kind) string {
	if g == nil {
		return ""
	}
	if kind == KindEvent {
		return g.EventChannelID
	}
	return g.TaskChannelID
}
