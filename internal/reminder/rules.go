package reminder

import (
	"time"

	"todobot/internal/domain"
)

// RuleConfig holds the externally configurable reminder policy. Zero values
// fall back to the defaults the bot has always shipped with.
type RuleConfig struct {
	// Offsets maps each pre-deadline tag to its distance before the
	// deadline. The "due" tag always has offset zero and is implied.
	Offsets map[domain.StandardTag]time.Duration

	// Grace is how long past the deadline an item survives before the
	// auto-delete rule retires it.
	Grace time.Duration
}

func (c RuleConfig) withDefaults() RuleConfig {
	if c.Offsets == nil {
		c.Offsets = map[domain.StandardTag]time.Duration{
			domain.Tag72h: 72 * time.Hour,
			domain.Tag24h: 24 * time.Hour,
			domain.Tag5h:  5 * time.Hour,
		}
	}
	if c.Grace <= 0 {
		c.Grace = 24 * time.Hour
	}
	return c
}

// Intent is one due-and-unfired reminder for one item, ready for reservation.
type Intent struct {
	Item    *domain.Item
	Ref     domain.ReminderRef
	Trigger time.Time
}

// Verdict is the rule set's decision for a single item on one pass. Delete
// supersedes Due: once an item is past the grace window no notification is
// emitted for it, even a missed "due" alert.
type Verdict struct {
	Due    []Intent
	Delete bool
}

// RuleSet evaluates the fixed standard reminders plus per-item custom
// reminders against a reference instant. It is stateless and never errors on
// well-formed items.
type RuleSet struct {
	cfg RuleConfig
}

func NewRuleSet(cfg RuleConfig) *RuleSet {
	return &RuleSet{cfg: cfg.withDefaults()}
}

// Grace returns the configured auto-delete grace window.
func (r *RuleSet) Grace() time.Duration { return r.cfg.Grace }

// Offset returns the configured offset for a standard tag (zero for "due").
func (r *RuleSet) Offset(tag domain.StandardTag) time.Duration {
	if tag == domain.TagDue {
		return 0
	}
	return r.cfg.Offsets[tag]
}

// Evaluate returns every due-and-unfired reminder for the item, or a deletion
// directive when the item is past deadline+grace. Completed items yield an
// empty verdict.
//
// All simultaneously elapsed reminders are returned together: after scheduler
// downtime the 72h, 24h and 5h triggers may all be due on a single pass, and
// each is independently reservable.
func (r *RuleSet) Evaluate(it *domain.Item, now time.Time) Verdict {
	if it == nil || it.Status != domain.StatusActive {
		return Verdict{}
	}

	// Data hygiene beats a late alert: strictly past the grace window the
	// item is retired instead of notified.
	if now.After(it.DueAt.Add(r.cfg.Grace)) {
		return Verdict{Delete: true}
	}

	var due []Intent
	for _, tag := range domain.StandardTags {
		if it.HasFired(tag) {
			continue
		}
		trigger := it.DueAt.Add(-r.Offset(tag))
		if !now.Before(trigger) {
			due = append(due, Intent{Item: it, Ref: domain.StdRef(tag), Trigger: trigger})
		}
	}
	for i, cr := range it.Custom {
		if cr.Fired {
			continue
		}
		if !now.Before(cr.FireAt) {
			due = append(due, Intent{Item: it, Ref: domain.CustomRef(i), Trigger: cr.FireAt})
		}
	}
	return Verdict{Due: due}
}
