package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPastTime rejects a reminder whose fire instant is not in the future.
	ErrPastTime = errors.New("fire time is not in the future")
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Reminder is the sole persisted entity. FireAt is always UTC; it is stored
// as an RFC3339 string, which is the external contract with the database.
type Reminder struct {
	ID        int64
	OwnerID   int64
	ChannelID int64
	Message   string
	FireAt    time.Time
	DM        bool
}

// AuditEntry records one reminder lifecycle event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time
	ActorID    int64
	ReminderID int64
	Action     string // "created", "delivered", "cancelled", "stale"
	OK         bool
	Error      string
}

// Store is the persistence API used by the reminder engine.
//
// Every method is a single short-lived statement; there is no cross-call
// transactional state, so callers may interleave freely.
type Store interface {
	CreateReminder(ctx context.Context, r Reminder) (int64, error)
	GetReminder(ctx context.Context, id int64) (*Reminder, error)
	ListReminders(ctx context.Context) ([]Reminder, error)
	ListRemindersForOwner(ctx context.Context, owner int64) ([]Reminder, error)
	// DeleteReminder removes the row only when owner matches; it reports
	// whether a row was actually removed.
	DeleteReminder(ctx context.Context, id, owner int64) (bool, error)
	// CountRemindersOnDay counts the owner's pending reminders whose fire
	// instant falls on the given UTC calendar day.
	CountRemindersOnDay(ctx context.Context, owner int64, day time.Time) (int, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	PruneAudit(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}
