package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "abc", "poll_timeout": "10s"},
		"logging": {"level": "DEBUG", "console": true, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false}},
		"storage": {"path": "./test.db"},
		"reminders": {"max_chunk": "30m"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.Console {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Reminders.MaxChunk != "30m" {
		t.Errorf("max_chunk = %q", cfg.Reminders.MaxChunk)
	}
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: abc
logging:
  level: INFO
  console: true
  file:
    enabled: true
    path: ./bot.log
  telegram:
    enabled: true
    chat_id: -100123
    min_level: WARN
    rate_per_sec: 1
storage:
  path: ./test.db
  busy_timeout: 5s
reminders:
  max_chunk: 1h
  stale_skew: 2s
audit:
  retention: 168h
  prune_spec: "@hourly"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Telegram.ChatID != -100123 {
		t.Errorf("chat_id = %d", cfg.Logging.Telegram.ChatID)
	}
	if cfg.Storage.BusyTimeout != "5s" {
		t.Errorf("busy_timeout = %q", cfg.Storage.BusyTimeout)
	}
	if cfg.Audit.PruneSpec != "@hourly" {
		t.Errorf("prune_spec = %q", cfg.Audit.PruneSpec)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "abc", "tokn_typo": true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "abc"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := NewManager(filepath.Join(t.TempDir(), "nope.json")).Parse(); err == nil {
		t.Fatal("expected read error")
	}
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"30s", 30 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"-5s", 0, true},
		{"5 parsecs", 0, true},
	}
	for _, tc := range cases {
		d, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q) succeeded, want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q) error: %v", tc.raw, err)
			continue
		}
		if d != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.raw, d, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	if d, err := ParseDurationOrDefault("f", "", time.Minute); err != nil || d != time.Minute {
		t.Errorf("empty: got (%v, %v)", d, err)
	}
	if d, err := ParseDurationOrDefault("f", "3s", time.Minute); err != nil || d != 3*time.Second {
		t.Errorf("set: got (%v, %v)", d, err)
	}
	if _, err := ParseDurationOrDefault("f", "junk", time.Minute); err == nil {
		t.Error("junk: expected error")
	}
}

func TestLoadAndGet(t *testing.T) {
	path := writeConfig(t, "config.json", `{"storage": {"path": "./a.db"}}`)
	m := NewManager(path)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get must return the loaded config")
	}
}

func TestSubscribeDropsOldestWhenFull(t *testing.T) {
	m := NewManager("unused")
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second)

	got := <-sub
	if got != second {
		t.Fatal("expected the newest config to win")
	}
}
