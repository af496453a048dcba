// Package storage persists items and settings in a single SQLite database.
//
// It backs three consumers:
//   - the command surface (create/list/edit/complete/assign)
//   - the reminder engine, including the conditional fired-state update
//     that makes delivery idempotent
//   - the weekly aggregator
package storage
