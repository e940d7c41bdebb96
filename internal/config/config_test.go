package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

const validJSON = `{
  "api": {
    "base_url": "https://desk.example.com/api",
    "timeout_sec": 5,
    "retries": 2,
    "retry_delay_ms": 250
  },
  "channel": {
    "url": "wss://desk.example.com/ws",
    "room": "support",
    "user_id": "agent-7",
    "heartbeat_sec": 15
  },
  "local": {
    "dir": "/tmp/deskflow-test"
  },
  "jobs": {
    "stats_refresh": "@every 30s"
  }
}`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(validJSON), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.BaseURL != "https://desk.example.com/api" {
		t.Errorf("api.base_url = %q", cfg.API.BaseURL)
	}
	if cfg.API.Retries != 2 {
		t.Errorf("api.retries = %d", cfg.API.Retries)
	}
	if time.Duration(cfg.API.RetryDelay) != 250*time.Millisecond {
		t.Errorf("api.retry_delay = %v", time.Duration(cfg.API.RetryDelay))
	}
	if cfg.Channel.Room != protocol.RoomSupport {
		t.Errorf("channel.room = %q", cfg.Channel.Room)
	}
	if cfg.Channel.UserID != "agent-7" {
		t.Errorf("channel.user_id = %q", cfg.Channel.UserID)
	}
	if cfg.Channel.HeartbeatSec != 15 {
		t.Errorf("channel.heartbeat_sec = %d", cfg.Channel.HeartbeatSec)
	}
	if cfg.Jobs.StatsRefresh != "@every 30s" {
		t.Errorf("jobs.stats_refresh = %q", cfg.Jobs.StatsRefresh)
	}
	// Unspecified fields pick up defaults.
	if cfg.Channel.ReconnectAttempts != 5 {
		t.Errorf("channel.reconnect_attempts = %d, want default 5", cfg.Channel.ReconnectAttempts)
	}
	if cfg.Jobs.DraftPrune != "@every 10m" {
		t.Errorf("jobs.draft_prune = %q, want default", cfg.Jobs.DraftPrune)
	}
}

func TestLoadRetriesDefaultVsExplicitZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	// An omitted retries key gets the default.
	os.WriteFile(path, []byte(`{"api":{"base_url":"https://desk.example.com/api"}}`), 0o644)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Retries != 1 {
		t.Errorf("omitted retries = %d, want default 1", cfg.API.Retries)
	}

	// An explicit zero disables retries and must be kept.
	os.WriteFile(path, []byte(`{"api":{"base_url":"https://desk.example.com/api","retries":0}}`), 0o644)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Retries != 0 {
		t.Errorf("explicit zero retries = %d, want 0", cfg.API.Retries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://desk.invalid:9000/api")
	t.Setenv("WS_URL", "ws://desk.invalid:9000")
	t.Setenv("DESKFLOW_ROOM", "support")
	t.Setenv("DESKFLOW_DATA_DIR", t.TempDir())

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Channel.URL != "ws://desk.invalid:9000" {
		t.Errorf("channel.url = %q", cfg.Channel.URL)
	}
	if cfg.Channel.Room != protocol.RoomSupport {
		t.Errorf("channel.room = %q", cfg.Channel.Room)
	}
	if cfg.API.Retries != 1 {
		t.Errorf("api.retries default = %d, want 1", cfg.API.Retries)
	}
	if cfg.Channel.HeartbeatSec != 30 {
		t.Errorf("heartbeat default = %d, want 30", cfg.Channel.HeartbeatSec)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("WS_URL", "")
	t.Setenv("DESKFLOW_DATA_DIR", t.TempDir())

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("api.base_url = %q, want %q", cfg.API.BaseURL, DefaultAPIBaseURL)
	}
	if cfg.Channel.URL != DefaultChannelURL {
		t.Errorf("channel.url = %q, want %q", cfg.Channel.URL, DefaultChannelURL)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		API:     APIConfig{BaseURL: "ftp://nope"},
		Channel: ChannelConfig{URL: "irc://nope", Room: "lobby"},
	}
	cfg.API.TimeoutSec = 10
	cfg.API.RetryDelay = Duration(time.Second)
	cfg.Local.Dir = "/tmp"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"api.base_url", "channel.url", "channel.room"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q: %s", want, msg)
		}
	}
}
