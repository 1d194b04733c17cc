package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

var (
	// ErrPastTime mirrors the store's rejection of non-future instants so
	// callers only need one package to match against.
	ErrPastTime = storage.ErrPastTime

	// ErrDailyLimit rejects a second reminder for the same owner firing on
	// the same UTC calendar day. This is a creation-time limit, not an
	// invariant over historical rows.
	ErrDailyLimit = errors.New("only one reminder per day is allowed")
)

// Messenger is the outbound messaging surface the worker delivers through.
// Both calls are fallible and fire-and-forget from the engine's perspective.
type Messenger interface {
	SendDirect(ctx context.Context, userID int64, text string) error
	SendChannel(ctx context.Context, channelID int64, text string) error
}

// Config tunes the wait strategy.
type Config struct {
	// MaxChunk bounds a single sleep so cancellation is observed promptly
	// even for far-future reminders. Default 1h.
	MaxChunk time.Duration
	// StaleSkew is the tolerance of the never-deliver-early guard at wake
	// time. Default 2s.
	StaleSkew time.Duration
	// DeliveryTimeout bounds the re-fetch/deliver/delete sequence. Default 15s.
	DeliveryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxChunk <= 0 {
		c.MaxChunk = time.Hour
	}
	if c.StaleSkew <= 0 {
		c.StaleSkew = 2 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 15 * time.Second
	}
	return c
}

// Service owns the reminder engine: store access, the live-task registry and
// the per-reminder wait workers. One instance per process; all state is
// explicit here, never package-global.
type Service struct {
	store    storage.Store
	msgr     Messenger
	clock    clock.Clock
	log      logx.Logger
	registry *Registry

	mu         sync.Mutex
	cfg        Config // guarded by mu; hot reload may retune it
	runCtx     context.Context
	runCancel  context.CancelFunc
	reconciled bool
}

func New(cfg Config, store storage.Store, msgr Messenger, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		store:    store,
		msgr:     msgr,
		clock:    clk,
		log:      log,
		registry: NewRegistry(),
	}
}

// Apply retunes the wait strategy at runtime (config hot reload). Workers
// pick up the new values at their next chunk boundary; persisted reminders
// are unaffected.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) tunables() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start establishes the run context workers inherit. Safe to call once.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
}

// Stop cancels all live workers and waits for them to exit, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.registry.CancelAll()
	if err := s.registry.Wait(ctx); err != nil {
		s.log.Warn("stop timed out waiting for workers", logx.Err(err))
	}
}

// Pending reports the number of live wait workers.
func (s *Service) Pending() int { return s.registry.Len() }

// Create parses whenText, validates it, persists the reminder and registers
// its worker. Validation failures (ParseError, ErrPastTime, ErrDailyLimit)
// are synchronous and nothing is persisted.
func (s *Service) Create(ctx context.Context, owner, channel int64, whenText, message string, dm bool) (storage.Reminder, error) {
	now := s.clock.Now().UTC()

	fireAt, err := ParseWhen(whenText, now)
	if err != nil {
		return storage.Reminder{}, err
	}
	if !fireAt.After(now) {
		return storage.Reminder{}, ErrPastTime
	}

	n, err := s.store.CountRemindersOnDay(ctx, owner, fireAt)
	if err != nil {
		return storage.Reminder{}, fmt.Errorf("daily limit check: %w", err)
	}
	if n > 0 {
		return storage.Reminder{}, ErrDailyLimit
	}

	rem := storage.Reminder{
		OwnerID:   owner,
		ChannelID: channel,
		Message:   message,
		FireAt:    fireAt,
		DM:        dm,
	}
	id, err := s.store.CreateReminder(ctx, rem)
	if err != nil {
		return storage.Reminder{}, err
	}
	rem.ID = id

	s.audit(ctx, owner, id, "created", true, "")
	s.schedule(rem)
	s.log.Info("reminder created",
		logx.Int64("id", id), logx.Int64("owner", owner),
		logx.Time("fire_at", fireAt), logx.Bool("dm", dm))
	return rem, nil
}

// List returns the owner's pending reminders, soonest first.
func (s *Service) List(ctx context.Context, owner int64) ([]storage.Reminder, error) {
	return s.store.ListRemindersForOwner(ctx, owner)
}

// Cancel deletes the owner's reminder and stops its worker. It reports
// whether a reminder was actually removed; false covers both unknown ids
// and ids owned by someone else.
func (s *Service) Cancel(ctx context.Context, owner, id int64) (bool, error) {
	deleted, err := s.store.DeleteReminder(ctx, id, owner)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	// The worker may have fired in between; a registry miss is fine.
	s.registry.Cancel(id)
	s.audit(ctx, owner, id, "cancelled", true, "")
	s.log.Info("reminder cancelled", logx.Int64("id", id), logx.Int64("owner", owner))
	return true, nil
}

// Reconcile loads every persisted reminder and schedules it. Runs once per
// process; the guard only avoids a wasted store round-trip on repeated
// reconnect events, correctness comes from Schedule being idempotent.
func (s *Service) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	if s.reconciled {
		s.mu.Unlock()
		return nil
	}
	s.reconciled = true
	s.mu.Unlock()

	rows, err := s.store.ListReminders(ctx)
	if err != nil {
		// Let a later call retry the load.
		s.mu.Lock()
		s.reconciled = false
		s.mu.Unlock()
		return fmt.Errorf("reconcile load: %w", err)
	}

	scheduled := 0
	for _, rem := range rows {
		if s.schedule(rem) {
			scheduled++
		}
	}
	s.log.Info("reconciled persisted reminders",
		logx.Int("rows", len(rows)), logx.Int("scheduled", scheduled))
	return nil
}

func (s *Service) schedule(rem storage.Reminder) bool {
	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	return s.registry.Schedule(parent, rem.ID, func(ctx context.Context) {
		defer s.registry.Deregister(rem.ID)
		s.wait(ctx, rem)
	})
}

func (s *Service) audit(ctx context.Context, actor, id int64, action string, ok bool, errMsg string) {
	e := storage.AuditEntry{
		At:         s.clock.Now(),
		ActorID:    actor,
		ReminderID: id,
		Action:     action,
		OK:         ok,
		Error:      errMsg,
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Debug("audit append failed", logx.Err(err), logx.String("action", action))
	}
}
