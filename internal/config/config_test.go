package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOCK_MODE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBRetries != 5 || cfg.ReplayTimeout != 10*time.Minute {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, `
server_port: ":9090"
lock_mode: memory
replay_schedule: "30 2 * * *"
replay_time_zone: Europe/Moscow
db_retries: 2
`)
	t.Setenv("PORT", "7000")
	t.Setenv("DB_RETRY_DELAY", "2s")
	t.Setenv("LOCK_MODE", "")
	t.Setenv("REPLAY_TIME_ZONE", "")
	t.Setenv("DB_RETRIES", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != ":7000" {
		t.Errorf("port = %q, env must win over yaml", cfg.ServerPort)
	}
	if cfg.LockMode != LockModeMemory || cfg.DBRetries != 2 || cfg.ReplayTimeZone != "Europe/Moscow" {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.DBRetryDelay != 2*time.Second {
		t.Errorf("retry delay = %v, want 2s", cfg.DBRetryDelay)
	}
}

func TestLoad_EmptyScheduleDisablesJob(t *testing.T) {
	t.Setenv("REPLAY_SCHEDULE", "")
	t.Setenv("LOCK_MODE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReplaySchedule != "" {
		t.Errorf("schedule = %q, want empty", cfg.ReplaySchedule)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("LOCK_MODE", "")

	if _, err := Load(writeFile(t, "lock_mode: redis\n")); err == nil {
		t.Error("unknown lock mode: expected error")
	}
	if _, err := Load(writeFile(t, "server_port: [\n")); err == nil {
		t.Error("broken yaml: expected error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}

	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	if _, err := Load(""); err == nil {
		t.Error("token without chat id: expected error")
	}

	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Error("bad chat id: expected error")
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "": slog.LevelInfo, "loud": slog.LevelInfo} {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
