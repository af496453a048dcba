package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"todobot/internal/transport"
	"todobot/pkg/logx"
)

// Discord allows at most this many embeds per message.
const maxEmbedsPerMessage = 10

// Adapter sends reminder and summary messages over a discordgo session. It
// implements transport.Notifier.
type Adapter struct {
	s   *discordgo.Session
	log logx.Logger

	// DM channel ids per user, so repeated reminders don't re-create the
	// channel through the API every time.
	dmMu sync.Mutex
	dm   map[string]string
}

func NewAdapter(s *discordgo.Session, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{s: s, log: log, dm: map[string]string{}}
}

// SendReminders renders the batch as one message carrying one embed per
// notice, split into chunks of Discord's embed limit.
func (a *Adapter) SendReminders(ctx context.Context, d transport.Delivery) error {
	if len(d.Notices) == 0 {
		return nil
	}
	channelID, err := a.channelID(d.Dest)
	if err != nil {
		return err
	}

	embeds := make([]*discordgo.MessageEmbed, 0, len(d.Notices))
	for _, n := range d.Notices {
		embeds = append(embeds, reminderEmbed(n))
	}
	for start := 0; start < len(embeds); start += maxEmbedsPerMessage {
		end := start + maxEmbedsPerMessage
		if end > len(embeds) {
			end = len(embeds)
		}
		msg := &discordgo.MessageSend{Embeds: embeds[start:end]}
		if _, err := a.s.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send reminders to %s: %w", d.Dest.Key(), err)
		}
	}
	return nil
}

func (a *Adapter) SendWeeklySummary(ctx context.Context, dest transport.Destination, sum transport.WeeklySummary) error {
	channelID, err := a.channelID(dest)
	if err != nil {
		return err
	}
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{weeklyEmbed(sum)}}
	if _, err := a.s.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send weekly summary to %s: %w", dest.Key(), err)
	}
	return nil
}

// channelID resolves the destination to a concrete channel, creating (and
// caching) the DM channel for direct deliveries.
func (a *Adapter) channelID(dest transport.Destination) (string, error) {
	if !dest.DM() {
		return dest.ChannelID, nil
	}

	a.dmMu.Lock()
	id, ok := a.dm[dest.UserID]
	a.dmMu.Unlock()
	if ok {
		return id, nil
	}

	ch, err := a.s.UserChannelCreate(dest.UserID)
	if err != nil {
		return "", fmt.Errorf("open dm with %s: %w", dest.UserID, err)
	}
	a.dmMu.Lock()
	a.dm[dest.UserID] = ch.ID
	a.dmMu.Unlock()
	return ch.ID, nil
}
