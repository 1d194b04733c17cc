package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Audit     AuditConfig     `json:"audit,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// RemindersConfig tunes the wait strategy of the reminder engine.
//
// All durations are Go duration strings (e.g. "30m", "1h").
type RemindersConfig struct {
	// MaxChunk bounds a single worker sleep; default "1h".
	MaxChunk string `json:"max_chunk,omitempty"`
	// StaleSkew is the never-deliver-early tolerance; default "2s".
	StaleSkew string `json:"stale_skew,omitempty"`
	// DeliveryTimeout bounds the wake-time store/send sequence; default "15s".
	DeliveryTimeout string `json:"delivery_timeout,omitempty"`
}

// AuditConfig controls retention of the audit trail.
type AuditConfig struct {
	// Retention is how long audit rows are kept; default "720h" (30 days).
	Retention string `json:"retention,omitempty"`
	// PruneSpec is the cron spec for the prune job; default "@daily".
	PruneSpec string `json:"prune_spec,omitempty"`
}
