package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todobot/internal/domain"
	"todobot/internal/eventbus"
	"todobot/pkg/logx"
)

// Store is the persistence surface the engine needs. ConditionalMarkFired
// comes from ReservationStore and is the only mutation that participates in
// the exactly-once protocol.
type Store interface {
	ReservationStore
	ListActive(ctx context.Context) ([]domain.Item, error)
	Delete(ctx context.Context, id string) error
}

// DeliveredRef identifies one reminder that was reserved during a pass.
type DeliveredRef struct {
	ItemID string
	Ref    domain.ReminderRef
}

// Result summarizes a single evaluation pass.
type Result struct {
	Delivered []DeliveredRef // reserved and handed to the notifier successfully
	Failed    []DeliveredRef // reserved but the send failed; not retried across passes
	Skipped   []DeliveredRef // reserved but no destination was configured
	Deleted   []string       // item IDs removed past the post-deadline grace
}

// Engine runs the reminder pass: fetch active items, evaluate them against
// the rule set, reserve due reminders through the tracker, delete expired
// items, and hand won reservations to the dispatcher.
//
// Reservation happens before dispatch. A reminder whose send fails is
// already marked fired and will not be re-sent on later passes; the regular
// cadence of the remaining standard reminders covers the gap.
type Engine struct {
	store      Store
	rules      *RuleSet
	tracker    *Tracker
	dispatcher *Dispatcher
	bus        eventbus.Bus
	log        logx.Logger
}

// NewEngine wires an engine. bus may be nil when nothing listens.
func NewEngine(store Store, rules *RuleSet, dispatcher *Dispatcher, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:      store,
		rules:      rules,
		tracker:    NewTracker(store),
		dispatcher: dispatcher,
		bus:        bus,
		log:        log,
	}
}

// EvaluateOnce performs one full pass at the given instant. Only a failure
// to list active items aborts the pass; every other error is confined to
// the item or destination it occurred on.
func (e *Engine) EvaluateOnce(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	items, err := e.store.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list active items: %w", err)
	}

	var won []Intent
	for i := range items {
		it := &items[i]
		verdict := e.rules.Evaluate(it, now)

		if verdict.Delete {
			if err := e.store.Delete(ctx, it.ID); err != nil {
				e.log.Warn("reminder: auto-delete failed",
					logx.String("item", it.ID), logx.Err(err))
				continue
			}
			res.Deleted = append(res.Deleted, it.ID)
			e.log.Info("reminder: item expired past grace, deleted",
				logx.String("item", it.ID),
				logx.String("title", it.Title),
				logx.Time("due_at", it.DueAt))
			e.publish(EventItemAutoDeleted, AutoDeleteEvent{ItemID: it.ID, Title: it.Title, GuildID: it.GuildID, DueAt: it.DueAt})
			continue
		}

		for _, in := range verdict.Due {
			if err := e.tracker.MarkFired(ctx, in.Item.ID, in.Ref); err != nil {
				if errors.Is(err, ErrAlreadyFired) {
					e.log.Debug("reminder: reservation lost, already fired",
						logx.String("item", in.Item.ID),
						logx.String("ref", in.Ref.String()))
					continue
				}
				e.log.Warn("reminder: reservation failed",
					logx.String("item", in.Item.ID),
					logx.String("ref", in.Ref.String()),
					logx.Err(err))
				continue
			}
			won = append(won, in)
		}
	}

	if len(won) > 0 {
		for _, out := range e.dispatcher.Dispatch(ctx, won) {
			ref := DeliveredRef{ItemID: out.ItemID, Ref: out.Ref}
			switch {
			case out.Skipped:
				res.Skipped = append(res.Skipped, ref)
			case out.Err != nil:
				res.Failed = append(res.Failed, ref)
				e.publish(EventDeliveryFailed, DeliveryFailedEvent{ItemID: out.ItemID, Ref: out.Ref.String(), Dest: out.Dest.Key(), Reason: out.Err.Error()})
			default:
				res.Delivered = append(res.Delivered, ref)
				e.publish(EventReminderFired, FiredEvent{ItemID: out.ItemID, Ref: out.Ref.String(), Dest: out.Dest.Key()})
			}
		}
	}

	e.publish(EventPassCompleted, PassEvent{
		At:        now,
		Items:     len(items),
		Delivered: len(res.Delivered),
		Failed:    len(res.Failed),
		Deleted:   len(res.Deleted),
	})
	return res, nil
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
