package reminder

import "time"

// Event types published on the in-process bus.
const (
	EventReminderFired   = "reminder.fired"
	EventDeliveryFailed  = "reminder.delivery_failed"
	EventItemAutoDeleted = "item.autodeleted"
	EventPassCompleted   = "pass.completed"
)

// FiredEvent announces one successfully delivered reminder.
type FiredEvent struct {
	ItemID string `json:"item_id"`
	Ref    string `json:"ref"`
	Dest   string `json:"dest"`
}

// DeliveryFailedEvent announces a reserved reminder whose send failed.
type DeliveryFailedEvent struct {
	ItemID string `json:"item_id"`
	Ref    string `json:"ref"`
	Dest   string `json:"dest"`
	Reason string `json:"reason"`
}

// AutoDeleteEvent announces an item removed past the post-deadline grace.
type AutoDeleteEvent struct {
	ItemID  string    `json:"item_id"`
	Title   string    `json:"title"`
	GuildID string    `json:"guild_id"`
	DueAt   time.Time `json:"due_at"`
}

// PassEvent summarizes a completed evaluation pass.
type PassEvent struct {
	At        time.Time `json:"at"`
	Items     int       `json:"items"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Deleted   int       `json:"deleted"`
}
