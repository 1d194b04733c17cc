// Package reminder implements the bot's reminder engine: durable one-shot
// reminders with a per-reminder wait goroutine, idempotent scheduling, and
// startup reconciliation from the store.
//
// # Lifecycle
//
// A reminder is created (row persisted + worker registered), then terminates
// by exactly one of: delivered (worker sends the message and deletes the row)
// or cancelled (owner-initiated delete which also stops the worker). The
// store row existing IS the pending status; there is no status column.
//
// # Concurrency
//
// One goroutine per pending reminder. Workers never share mutable state with
// each other; they share the store (short independent statements) and the
// registry (a single mutex-guarded map). The registry is what guarantees at
// most one live wait per reminder id across the creation, cancellation,
// reconciliation and worker self-removal paths.
package reminder
