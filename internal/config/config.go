package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

// Defaults applied when neither config file nor environment say otherwise.
const (
	DefaultAPIBaseURL = "http://localhost:3001/api"
	DefaultChannelURL = "ws://localhost:3001/ws"
)

// Config is the top-level deskflow client configuration. Everything is
// read once at startup; there is no hot reload.
type Config struct {
	API     APIConfig     `json:"api"`
	Channel ChannelConfig `json:"channel"`
	Local   LocalConfig   `json:"local"`
	Jobs    JobsConfig    `json:"jobs"`
}

// APIConfig holds backend REST settings.
type APIConfig struct {
	BaseURL    string   `json:"base_url"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`     // default 10
	Retries    int      `json:"retries,omitempty"`         // extra attempts, default 1
	RetryDelay Duration `json:"retry_delay_ms,omitempty"`  // backoff base, default 500ms
}

// ChannelConfig holds real-time channel settings.
type ChannelConfig struct {
	URL               string            `json:"url"`
	Room              protocol.RoomType `json:"room,omitempty"`    // user (default) or support
	UserID            string            `json:"user_id,omitempty"` // optional identity for the join announce
	HeartbeatSec      int               `json:"heartbeat_sec,omitempty"`      // default 30
	ReconnectAttempts int               `json:"reconnect_attempts,omitempty"` // default 5
	ReconnectDelaySec int               `json:"reconnect_delay_sec,omitempty"`
}

// LocalConfig holds local persistence settings.
type LocalConfig struct {
	Dir string `json:"dir"` // directory for the local state database
}

// JobsConfig holds cron schedules for periodic client jobs.
type JobsConfig struct {
	StatsRefresh string `json:"stats_refresh,omitempty"` // default @every 1m
	DraftPrune   string `json:"draft_prune,omitempty"`   // default @every 10m
}

// Duration wraps time.Duration for millisecond JSON values.
type Duration time.Duration

// UnmarshalJSON accepts a bare number of milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON writes the duration as milliseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

// Load reads configuration from a JSON file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	// Seed the sentinel so an omitted "retries" key is distinguishable
	// from an explicit zero after unmarshalling.
	cfg.API.Retries = -1
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables. A .env file in
// the working directory is loaded first if present. The backend origin
// comes from API_BASE_URL and the channel endpoint from WS_URL, matching
// what the deployment environment already exports; DESKFLOW_* variables
// cover the rest.
func LoadFromEnv() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL:    getenv("API_BASE_URL", DefaultAPIBaseURL),
			TimeoutSec: getenvInt("DESKFLOW_API_TIMEOUT_SEC", 0),
			Retries:    getenvInt("DESKFLOW_API_RETRIES", -1),
		},
		Channel: ChannelConfig{
			URL:    getenv("WS_URL", DefaultChannelURL),
			Room:   protocol.RoomType(getenv("DESKFLOW_ROOM", string(protocol.RoomUser))),
			UserID: os.Getenv("DESKFLOW_USER_ID"),
		},
		Local: LocalConfig{
			Dir: getenv("DESKFLOW_DATA_DIR", defaultDataDir()),
		},
		Jobs: JobsConfig{
			StatsRefresh: os.Getenv("DESKFLOW_STATS_REFRESH"),
			DraftPrune:   os.Getenv("DESKFLOW_DRAFT_PRUNE"),
		},
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIBaseURL
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 10
	}
	if c.API.Retries < 0 {
		c.API.Retries = 1
	}
	if c.API.RetryDelay <= 0 {
		c.API.RetryDelay = Duration(500 * time.Millisecond)
	}
	if c.Channel.URL == "" {
		c.Channel.URL = DefaultChannelURL
	}
	if c.Channel.Room == "" {
		c.Channel.Room = protocol.RoomUser
	}
	if c.Channel.HeartbeatSec <= 0 {
		c.Channel.HeartbeatSec = 30
	}
	if c.Channel.ReconnectAttempts <= 0 {
		c.Channel.ReconnectAttempts = 5
	}
	if c.Channel.ReconnectDelaySec <= 0 {
		c.Channel.ReconnectDelaySec = 3
	}
	if c.Local.Dir == "" {
		c.Local.Dir = defaultDataDir()
	}
	if c.Jobs.StatsRefresh == "" {
		c.Jobs.StatsRefresh = "@every 1m"
	}
	if c.Jobs.DraftPrune == "" {
		c.Jobs.DraftPrune = "@every 10m"
	}
}

// Validate checks for malformed fields, aggregating all problems.
func (c *Config) Validate() error {
	var errs []string

	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an http(s) URL", c.API.BaseURL))
	}
	if !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") &&
		!strings.HasPrefix(c.Channel.URL, "http://") && !strings.HasPrefix(c.Channel.URL, "https://") {
		errs = append(errs, fmt.Sprintf("channel.url %q must be a ws(s) or http(s) URL", c.Channel.URL))
	}
	if c.Channel.Room != protocol.RoomUser && c.Channel.Room != protocol.RoomSupport {
		errs = append(errs, fmt.Sprintf("channel.room %q must be %q or %q", c.Channel.Room, protocol.RoomUser, protocol.RoomSupport))
	}
	if c.Local.Dir == "" {
		errs = append(errs, "local.dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskflow"
	}
	return home + "/.deskflow"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
