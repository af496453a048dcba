package reminder

import (
	"context"
	"errors"

	"todobot/internal/domain"
)

// ErrAlreadyFired means a reservation was lost because the reminder is
// already recorded as fired. Callers treat it as "someone else delivered
// this; skip", never as a failure.
var ErrAlreadyFired = errors.New("reminder already fired")

// ReservationStore is the slice of the store the tracker needs: a
// linearizable compare-and-set per (item, reminder ref) pair.
type ReservationStore interface {
	// ConditionalMarkFired persists the unfired->fired transition and
	// reports whether this caller won it.
	ConditionalMarkFired(ctx context.Context, itemID string, ref domain.ReminderRef) (won bool, err error)
}

// Tracker enforces idempotent delivery. It holds no state of its own: fired
// flags live on the item rows and every reservation goes through the store's
// conditional update, so correctness survives restarts and concurrent
// scheduler instances.
type Tracker struct {
	store ReservationStore
}

func NewTracker(store ReservationStore) *Tracker {
	return &Tracker{store: store}
}

// MarkFired reserves the right to deliver the given reminder. It returns
// ErrAlreadyFired when the reservation was lost, or the store's error on
// transient failure.
func (t *Tracker) MarkFired(ctx context.Context, itemID string, ref domain.ReminderRef) error {
	won, err := t.store.ConditionalMarkFired(ctx, itemID, ref)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyFired
	}
	return nil
}

// IsFired reports the fired state recorded on the item snapshot. Out-of-range
// custom refs read as fired so a stale snapshot can never resurrect a
// reminder.
func (t *Tracker) IsFired(it *domain.Item, ref domain.ReminderRef) bool {
	if it == nil {
		return true
	}
	if ref.IsCustom() {
		if ref.Custom >= len(it.Custom) {
			return true
		}
		return it.Custom[ref.Custom].Fired
	}
	return it.HasFired(ref.Std)
}
