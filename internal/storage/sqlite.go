package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite-backed store, creating the schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateReminder(ctx context.Context, r Reminder) (int64, error) {
	fireAt := r.FireAt.UTC()
	if !fireAt.After(time.Now().UTC()) {
		return 0, ErrPastTime
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(owner_id, channel_id, message, fire_at, dm) VALUES(?,?,?,?,?)`,
		r.OwnerID, r.ChannelID, r.Message, fireAt.Format(time.RFC3339), boolToInt(r.DM),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, channel_id, message, fire_at, dm FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqliteStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT id, owner_id, channel_id, message, fire_at, dm FROM reminders ORDER BY fire_at`)
}

func (s *sqliteStore) ListRemindersForOwner(ctx context.Context, owner int64) ([]Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT id, owner_id, channel_id, message, fire_at, dm FROM reminders WHERE owner_id = ? ORDER BY fire_at`, owner)
}

func (s *sqliteStore) queryReminders(ctx context.Context, q string, args ...any) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReminder(scan func(dest ...any) error) (Reminder, error) {
	var (
		r      Reminder
		fireAt string
		dm     int
	)
	if err := scan(&r.ID, &r.OwnerID, &r.ChannelID, &r.Message, &fireAt, &dm); err != nil {
		return Reminder{}, err
	}
	t, err := time.Parse(time.RFC3339, fireAt)
	if err != nil {
		return Reminder{}, fmt.Errorf("corrupt fire_at %q: %w", fireAt, err)
	}
	r.FireAt = t.UTC()
	r.DM = dm != 0
	return r, nil
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id, owner int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) CountRemindersOnDay(ctx context.Context, owner int64, day time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE owner_id = ? AND date(fire_at) = date(?)`,
		owner, day.UTC().Format(time.RFC3339),
	).Scan(&n)
	return n, err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, reminder_id, action, ok, err) VALUES(?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, e.ReminderID, e.Action, boolToInt(e.OK), nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit WHERE at < ?`, olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
