package transport

import (
	"context"
	"time"

	"todobot/internal/domain"
)

// Destination is a delivery target on the chat platform: either a guild text
// channel or, when ChannelID is empty, a direct message to UserID.
type Destination struct {
	GuildID   string
	ChannelID string
	UserID    string
}

// DM reports whether the destination is a direct message.
func (d Destination) DM() bool { return d.ChannelID == "" }

// Key returns a stable grouping key for batching sends.
func (d Destination) Key() string {
	if d.DM() {
		return "dm:" + d.UserID
	}
	return "ch:" + d.ChannelID
}

// ReminderNotice is one logical reminder notification: the item it concerns
// and which reminder fired. Rendering happens in the adapter.
type ReminderNotice struct {
	Item *domain.Item
	Ref  domain.ReminderRef
}

// Delivery is a batch of notices bound for a single destination. The adapter
// renders the batch as one message carrying one embed per notice, chunked to
// platform limits, so colocated reminders do not flood the channel.
type Delivery struct {
	Dest    Destination
	Notices []ReminderNotice
}

// WeeklySummary is the per-guild aggregate compiled by the weekly job.
type WeeklySummary struct {
	GuildID      string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Total        int
	Completed    int
	Contributors int
	Items        []WeeklyItem
}

// WeeklyItem is one row of a weekly summary.
type WeeklyItem struct {
	Title string
	DueAt time.Time
	Done  bool
	Group bool
}

// Notifier performs the actual outbound send. Implementations must not block
// past their configured send timeout and must isolate failures per call.
type Notifier interface {
	SendReminders(ctx context.Context, d Delivery) error
	SendWeeklySummary(ctx context.Context, dest Destination, s WeeklySummary) error
}
