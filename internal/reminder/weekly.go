package reminder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"todobot/internal/domain"
	"todobot/internal/transport"
	"todobot/pkg/logx"
)

// WeeklyStore lists items, completed ones included, whose deadline falls in
// a window. The aggregator is otherwise stateless: it recomputes the whole
// summary from storage on every run.
type WeeklyStore interface {
	ListByDeadline(ctx context.Context, from, to time.Time) ([]domain.Item, error)
}

// Aggregator compiles the weekly recap: everything that was due from Monday
// through Saturday of the week ending at the run instant, grouped per guild
// and posted to the guild's task channel.
type Aggregator struct {
	store    WeeklyStore
	settings SettingsLookup
	notifier transport.Notifier
	zone     *time.Location
	log      logx.Logger
}

// NewAggregator wires a weekly aggregator. zone is the reference zone used
// to anchor the Monday..Saturday window; nil means UTC.
func NewAggregator(store WeeklyStore, settings SettingsLookup, notifier transport.Notifier, zone *time.Location, log logx.Logger) *Aggregator {
	if zone == nil {
		zone = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{
		store:    store,
		settings: settings,
		notifier: notifier,
		zone:     zone,
		log:      log,
	}
}

// Window returns the Monday 00:00 .. Sunday 00:00 span, in the reference
// zone, of the week containing now. The summary job runs on Sunday, so the
// span covers the six days just ended.
func (a *Aggregator) Window(now time.Time) (from, to time.Time) {
	local := now.In(a.zone)
	// days since Monday; Sunday counts as the end of the prior week.
	offset := (int(local.Weekday()) + 6) % 7
	monday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.zone).
		AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// Run builds and posts one summary per guild that had items due this week.
// Guilds without a task channel are skipped. A send failure for one guild
// does not stop the rest.
func (a *Aggregator) Run(ctx context.Context, now time.Time) error {
	from, to := a.Window(now)
	items, err := a.store.ListByDeadline(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list items for week: %w", err)
	}

	byGuild := make(map[string][]domain.Item)
	for _, it := range items {
		if it.GuildID == "" {
			continue
		}
		byGuild[it.GuildID] = append(byGuild[it.GuildID], it)
	}

	guilds := make([]string, 0, len(byGuild))
	for g := range byGuild {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)

	var firstErr error
	for _, guildID := range guilds {
		summary := a.Summarize(guildID, byGuild[guildID], from, to)
		ch, err := a.settings.ChannelFor(ctx, guildID, domain.KindTask)
		if err != nil {
			a.log.Warn("weekly: channel lookup failed",
				logx.String("guild", guildID), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ch == "" {
			a.log.Info("weekly: no task channel configured, summary skipped",
				logx.String("guild", guildID))
			continue
		}
		dest := transport.Destination{GuildID: guildID, ChannelID: ch}
		if err := a.notifier.SendWeeklySummary(ctx, dest, summary); err != nil {
			a.log.Warn("weekly: summary delivery failed",
				logx.String("guild", guildID), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.log.Info("weekly: summary delivered",
			logx.String("guild", guildID),
			logx.Int("total", summary.Total),
			logx.Int("completed", summary.Completed))
	}
	return firstErr
}

// Summarize folds a guild's items for the window into one summary. Items
// are listed soonest deadline first; contributors counts distinct owners
// and assignees of completed items.
func (a *Aggregator) Summarize(guildID string, items []domain.Item, from, to time.Time) transport.WeeklySummary {
	sort.Slice(items, func(i, j int) bool { return items[i].DueAt.Before(items[j].DueAt) })

	contributors := make(map[string]struct{})
	rows := make([]transport.WeeklyItem, 0, len(items))
	completed := 0
	for _, it := range items {
		done := it.Status == domain.StatusCompleted
		if done {
			completed++
			contributors[it.OwnerID] = struct{}{}
			for _, a := range it.Assignees {
				contributors[a] = struct{}{}
			}
		}
		rows = append(rows, transport.WeeklyItem{
			Title: it.Title,
			DueAt: it.DueAt.In(a.zone),
			Done:  done,
			Group: len(it.Assignees) > 0,
		})
	}
	return transport.WeeklySummary{
		GuildID:      guildID,
		PeriodStart:  from,
		PeriodEnd:    to,
		Total:        len(items),
		Completed:    completed,
		Contributors: len(contributors),
		Items:        rows,
	}
}
