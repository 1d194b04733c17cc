// Package app wires the process together: config, logging, storage, the
// Telegram adapter, the reminder engine and the command router.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

// StopReason labels why the process is shutting down; it only feeds logs.
type StopReason string

const (
	StopSignal   StopReason = "signal"
	StopFatal    StopReason = "fatal_error"
	StopAppClose StopReason = "app_close"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter kit.Adapter
	svc     *reminder.Service
	router  *bot.Router

	cron *cron.Cron

	// guarded by mu
	mu             sync.Mutex
	auditRetention time.Duration
	runCancel      context.CancelFunc

	wg sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	// The log sink is wired after the adapter exists; until then telegram
	// log lines are silently skipped.
	logSvc.SetSender(plainSender{adapter: ad})

	rc, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}
	svc := reminder.New(rc, store, messenger{adapter: ad}, clock.New(),
		log.With(logx.String("comp", "reminder")))

	router := bot.NewRouter(ad, svc, log.With(logx.String("comp", "bot")))

	retention, spec, err := mapAuditConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath:        cfgPath,
		cfgm:           cfgm,
		log:            log,
		logs:           logSvc,
		store:          store,
		adapter:        ad,
		svc:            svc,
		router:         router,
		auditRetention: retention,
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(spec, a.pruneAudit); err != nil {
		return nil, fmt.Errorf("audit.prune_spec: %w", err)
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.runCancel = cancel
	a.mu.Unlock()

	if err := a.adapter.Start(runCtx, a.router.Updates()); err != nil {
		cancel()
		return err
	}

	a.svc.Start(runCtx)
	if err := a.svc.Reconcile(ctx); err != nil {
		// Persisted reminders could not be loaded; the process still serves
		// new commands, and the operator sees this in the log.
		a.log.Error("startup reconciliation failed", logx.Err(err))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	a.cron.Start()

	a.log.Info("app started", logx.Int("pending", a.svc.Pending()))
	return nil
}

// reloadLoop applies config file changes to the components that can retune
// at runtime. Storage and telegram credentials need a restart; that is
// logged, not applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyReload(cfg)
		}
	}
}

func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))

	if rc, err := mapReminderConfig(cfg); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else {
		a.svc.Apply(rc)
	}

	if retention, _, err := mapAuditConfig(cfg); err != nil {
		a.log.Warn("invalid audit config; keeping previous", logx.Err(err))
	} else {
		a.mu.Lock()
		a.auditRetention = retention
		a.mu.Unlock()
	}
	// The cron entry keeps its original spec; changing audit.prune_spec or
	// storage/telegram settings requires a restart.
	a.log.Info("config changes applied")
}

func (a *App) pruneAudit() {
	a.mu.Lock()
	retention := a.auditRetention
	a.mu.Unlock()
	if retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := a.store.PruneAudit(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		a.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		a.log.Info("audit trail pruned", logx.Int64("rows", n))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.mu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}

	// Workers get a bounded window to unwind; a delivery in flight still
	// completes its store calls on its own timeout.
	a.svc.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop timed out waiting for background loops")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
