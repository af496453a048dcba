package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"todobot/pkg/logx"
)

// NewSession builds a gateway session for the bot token. The session is not
// opened; Service.Start does that.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return s, nil
}

// Service owns the gateway connection and slash command registration.
type Service struct {
	s       *discordgo.Session
	guildID string
	cmds    *Commands
	log     logx.Logger
}

// NewService wraps an unopened session. guildID scopes command registration
// to one guild for fast propagation; empty registers globally.
func NewService(s *discordgo.Session, guildID string, cmds *Commands, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{s: s, guildID: guildID, cmds: cmds, log: log}
}

// Start opens the gateway and overwrites the registered command set so
// stale commands from previous versions disappear.
func (sv *Service) Start(ctx context.Context) error {
	sv.s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		sv.log.Info("discord gateway ready",
			logx.String("user", r.User.Username),
			logx.Int("guilds", len(r.Guilds)))
	})
	sv.s.AddHandler(sv.cmds.Handle)

	if err := sv.s.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	defs := sv.cmds.Definitions()
	if _, err := sv.s.ApplicationCommandBulkOverwrite(sv.s.State.User.ID, sv.guildID, defs); err != nil {
		_ = sv.s.Close()
		return fmt.Errorf("register commands: %w", err)
	}
	sv.log.Info("slash commands registered",
		logx.Int("count", len(defs)),
		logx.String("guild", sv.guildID))
	return nil
}

// Stop closes the gateway connection.
func (sv *Service) Stop(ctx context.Context) error {
	if err := sv.s.Close(); err != nil {
		return fmt.Errorf("close gateway: %w", err)
	}
	return nil
}
