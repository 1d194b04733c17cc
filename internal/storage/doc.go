// Package storage persists the bot's reminders and an append-only audit
// trail of reminder lifecycle events.
//
// The reminders table is the source of truth for "pending": a row exists
// exactly while its reminder has neither fired nor been cancelled.
package storage
