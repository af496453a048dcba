package reminder

import (
	"context"
	"sync"
	"time"

	"todobot/internal/domain"
	"todobot/internal/transport"
	"todobot/pkg/logx"
)

// SettingsLookup resolves per-guild delivery channels. The item store backs
// it; a missing row yields an empty channel ID, never an error.
type SettingsLookup interface {
	ChannelFor(ctx context.Context, guildID string, kind domain.Kind) (string, error)
}

// Outcome records what happened to a single won reservation.
type Outcome struct {
	ItemID  string
	Ref     domain.ReminderRef
	Dest    transport.Destination
	Skipped bool
	Err     error
}

// Dispatcher routes won reminder intents to their destinations and sends
// each destination's batch independently, so one slow or failing channel
// cannot stall the rest of the pass.
type Dispatcher struct {
	notifier    transport.Notifier
	settings    SettingsLookup
	log         logx.Logger
	sendTimeout time.Duration
}

// NewDispatcher constructs a dispatcher. A zero sendTimeout disables the
// per-destination deadline.
func NewDispatcher(notifier transport.Notifier, settings SettingsLookup, sendTimeout time.Duration, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		notifier:    notifier,
		settings:    settings,
		log:         log,
		sendTimeout: sendTimeout,
	}
}

// Dispatch resolves a destination for every intent, groups intents that
// share one, and sends the groups concurrently. Intents whose guild has no
// channel configured for the item's class are skipped, not failed: the
// reservation stands and the skip is logged.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []Intent) []Outcome {
	outcomes := make([]Outcome, 0, len(intents))
	groups := make(map[string]*transport.Delivery)
	order := make([]string, 0, 4)

	for _, in := range intents {
		dest, ok, err := d.resolve(ctx, in.Item)
		if err != nil {
			outcomes = append(outcomes, Outcome{ItemID: in.Item.ID, Ref: in.Ref, Err: err})
			d.log.Warn("reminder: destination lookup failed",
				logx.String("item", in.Item.ID),
				logx.String("guild", in.Item.GuildID),
				logx.Err(err))
			continue
		}
		if !ok {
			outcomes = append(outcomes, Outcome{ItemID: in.Item.ID, Ref: in.Ref, Skipped: true})
			d.log.Info("reminder: no channel configured, delivery skipped",
				logx.String("item", in.Item.ID),
				logx.String("guild", in.Item.GuildID),
				logx.String("kind", string(in.Item.Kind)))
			continue
		}
		key := dest.Key()
		g, exists := groups[key]
		if !exists {
			g = &transport.Delivery{Dest: dest}
			groups[key] = g
			order = append(order, key)
		}
		g.Notices = append(g.Notices, transport.ReminderNotice{Item: in.Item, Ref: in.Ref})
	}

	if len(order) == 0 {
		return outcomes
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, key := range order {
		delivery := groups[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx := ctx
			if d.sendTimeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
				defer cancel()
			}
			err := d.notifier.SendReminders(sendCtx, *delivery)
			mu.Lock()
			for _, n := range delivery.Notices {
				outcomes = append(outcomes, Outcome{
					ItemID: n.Item.ID,
					Ref:    n.Ref,
					Dest:   delivery.Dest,
					Err:    err,
				})
			}
			mu.Unlock()
			if err != nil {
				d.log.Warn("reminder: delivery failed",
					logx.String("dest", delivery.Dest.Key()),
					logx.Int("notices", len(delivery.Notices)),
					logx.Err(err))
			}
		}()
	}
	wg.Wait()
	return outcomes
}

// resolve picks the destination for an item: the guild channel configured
// for the item's class, or a DM to the owner when the item has no guild.
// ok is false when the guild has no channel set for that class.
func (d *Dispatcher) resolve(ctx context.Context, it *domain.Item) (transport.Destination, bool, error) {
	if it.GuildID == "" {
		return transport.Destination{UserID: it.OwnerID}, true, nil
	}
	ch, err := d.settings.ChannelFor(ctx, it.GuildID, it.Kind)
	if err != nil {
		return transport.Destination{}, false, err
	}
	if ch == "" {
		return transport.Destination{}, false, nil
	}
	return transport.Destination{GuildID: it.GuildID, ChannelID: ch, UserID: it.OwnerID}, true, nil
}
