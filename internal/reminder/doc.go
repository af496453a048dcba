// Package reminder implements the reminder scheduling and delivery engine.
//
// # Overview
//
// The engine is tick-driven: an external trigger (internal/scheduler) invokes
// EvaluateOnce at a fixed cadence. One pass fetches all active items from the
// store, asks the rule set which reminders are newly due, reserves each due
// reminder with a conditional store update, retires items past the grace
// window, and hands the won reservations to the dispatcher for delivery.
//
// # Exactly-once delivery
//
// Correctness under repetition rests on the reservation step, not on mutual
// exclusion: marking a reminder fired is a compare-and-set at the store, so
// overlapping ticks, restarts and even multiple scheduler processes against
// the same database cannot double-deliver. A lost reservation is not an
// error; it means another pass already owns that delivery.
//
// # Failure isolation
//
// Nothing in a pass is fatal. Per-item store or destination failures are
// logged and skipped; the periodic cadence is the retry mechanism. Only a
// failure to list the active items aborts a pass.
package reminder
