package app

import (
	"time"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	telegram "remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

// Mapping between the file config shapes and per-component configs. Duration
// fields are strings in the file and parsed here, so a bad value is rejected
// before it reaches the component.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = "./remindbot.db"
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapReminderConfig(cfg *config.Config) (reminder.Config, error) {
	maxChunk, err := config.ParseDurationField("reminders.max_chunk", cfg.Reminders.MaxChunk)
	if err != nil {
		return reminder.Config{}, err
	}
	staleSkew, err := config.ParseDurationField("reminders.stale_skew", cfg.Reminders.StaleSkew)
	if err != nil {
		return reminder.Config{}, err
	}
	deliveryTimeout, err := config.ParseDurationField("reminders.delivery_timeout", cfg.Reminders.DeliveryTimeout)
	if err != nil {
		return reminder.Config{}, err
	}
	// Zero values fall back to the engine's own defaults.
	return reminder.Config{
		MaxChunk:        maxChunk,
		StaleSkew:       staleSkew,
		DeliveryTimeout: deliveryTimeout,
	}, nil
}

func mapAuditConfig(cfg *config.Config) (retention time.Duration, pruneSpec string, err error) {
	retention, err = config.ParseDurationOrDefault("audit.retention", cfg.Audit.Retention, 30*24*time.Hour)
	if err != nil {
		return 0, "", err
	}
	pruneSpec = cfg.Audit.PruneSpec
	if pruneSpec == "" {
		pruneSpec = "@daily"
	}
	return retention, pruneSpec, nil
}
