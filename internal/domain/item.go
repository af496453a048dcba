package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes the two schedulable item classes. Tasks carry a single
// deadline; events carry a start and an end.
type Kind string

const (
	KindTask  Kind = "task"
	KindEvent Kind = "event"
)

// Status is the item lifecycle state. Completed items are excluded from all
// scheduling.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// StandardTag names one of the fixed pre-deadline reminder triggers.
type StandardTag string

const (
	Tag72h StandardTag = "72h"
	Tag24h StandardTag = "24h"
	Tag5h  StandardTag = "5h"
	TagDue StandardTag = "due"
)

// StandardTags lists all fixed tags in firing order (earliest trigger first).
var StandardTags = []StandardTag{Tag72h, Tag24h, Tag5h, TagDue}

// CustomReminder is a user-defined, independently timed notification attached
// to an item. FireAt is always UTC. Fired is monotonic false->true.
type CustomReminder struct {
	FireAt    time.Time
	Fired     bool
	CreatedBy string
}

// Item is the unit under scheduling: a task or an event.
//
// All instants are stored in UTC; per-user display timezones are applied only
// at render time. The fired set and custom reminder flags are read-modify-write
// fields committed by the store, so state survives restarts without
// re-delivery.
type Item struct {
	ID          string
	Kind        Kind
	GuildID     string // empty for items created outside a guild (DM delivery)
	OwnerID     string
	Assignees   []string // empty = individual item
	Title       string
	Description string

	DueAt  time.Time  // deadline (tasks) or start (events), UTC
	EndsAt *time.Time // events only

	Status      Status
	Fired       []StandardTag
	Custom      []CustomReminder
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// HasFired reports whether the standard tag is already in the fired set.
func (it *Item) HasFired(tag StandardTag) bool {
	for _, t := range it.Fired {
		if t == tag {
			return true
		}
	}
	return false
}

// ShortID returns the id prefix used in user-facing messages and lookups.
func (it *Item) ShortID() string {
	if len(it.ID) <= 8 {
		return it.ID
	}
	return it.ID[:8]
}

// ReminderRef identifies either a standard tag or a custom reminder (by
// insertion index) on a specific item.
type ReminderRef struct {
	Std    StandardTag // set when Custom < 0
	Custom int         // custom reminder index, -1 for standard refs
}

func StdRef(tag StandardTag) ReminderRef { return ReminderRef{Std: tag, Custom: -1} }

func CustomRef(index int) ReminderRef { return ReminderRef{Custom: index} }

// IsCustom reports whether the ref points at a custom reminder.
func (r ReminderRef) IsCustom() bool { return r.Custom >= 0 }

// String renders a stable key like "std:24h" or "custom:2", used for logging
// and as the reservation key at the store.
func (r ReminderRef) String() string {
	if r.IsCustom() {
		return "custom:" + strconv.Itoa(r.Custom)
	}
	return "std:" + string(r.Std)
}

// ParseReminderRef is the inverse of ReminderRef.String.
func ParseReminderRef(s string) (ReminderRef, error) {
	switch {
	case strings.HasPrefix(s, "std:"):
		tag := StandardTag(strings.TrimPrefix(s, "std:"))
		for _, t := range StandardTags {
			if t == tag {
				return StdRef(tag), nil
			}
		}
		return ReminderRef{}, fmt.Errorf("unknown standard tag %q", s)
	case strings.HasPrefix(s, "custom:"):
		i, err := strconv.Atoi(strings.TrimPrefix(s, "custom:"))
		if err != nil || i < 0 {
			return ReminderRef{}, fmt.Errorf("invalid custom index %q", s)
		}
		return CustomRef(i), nil
	default:
		return ReminderRef{}, fmt.Errorf("invalid reminder ref %q", s)
	}
}
