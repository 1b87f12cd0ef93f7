package config

import (
	"errors"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Secrets never live in the TOML file.
const (
	EnvTornAPIKey   = "TORN_API_KEY"
	EnvDiscordToken = "DISCORD_TOKEN"
)

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
		EnvFile  string `toml:"env_file"`
	} `toml:"app"`

	Torn struct {
		WsURL             string `toml:"ws_url"`
		APIBase           string `toml:"api_base"`
		FactionID         string `toml:"faction_id"`
		Channel           string `toml:"channel"`
		RequestsPerMinute int    `toml:"requests_per_minute"`
	} `toml:"torn"`

	Feed struct {
		MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
		BaseDelayMs          int `toml:"base_delay_ms"`
		MaxDelayMs           int `toml:"max_delay_ms"`
		ConnectTimeoutSec    int `toml:"connect_timeout_sec"`
		PollIntervalSec      int `toml:"poll_interval_sec"`
		HealthCheckSec       int `toml:"health_check_sec"`
		StaleAfterSec        int `toml:"stale_after_sec"`
		ResetPushDelaySec    int `toml:"reset_push_delay_sec"`
	} `toml:"feed"`

	Discord struct {
		Enabled        bool     `toml:"enabled"`
		AlertChannelID string   `toml:"alert_channel_id"`
		AdminIDs       []string `toml:"admin_ids"`
		CommandPrefix  string   `toml:"command_prefix"`
		Token          string   `toml:"-"`
	} `toml:"discord"`

	ChainWatch struct {
		WarnTimeoutSec int     `toml:"warn_timeout_sec"`
		Milestones     []int64 `toml:"milestones"`
	} `toml:"chainwatch"`

	Storage struct {
		Enabled        bool `toml:"enabled"`
		RetentionHours int  `toml:"retention_hours"` // snapshot history, negative keeps everything

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled      bool   `toml:"enabled"`
			Addr         string `toml:"addr"`
			Password     string `toml:"password"`
			DB           int    `toml:"db"`
			Prefix       string `toml:"prefix"`
			TTLSeconds   int    `toml:"ttl_seconds"`
			AlertStream  string `toml:"alert_stream"`
			AlertChannel string `toml:"alert_channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

var DefaultMilestones = []int64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000}

// Load reads the TOML file, then pulls secrets from the environment (after
// loading the optional .env file).
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	loadEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TornAPIKey is re-read on every call so a rotated key takes effect at once.
func TornAPIKey() string {
	return strings.TrimSpace(os.Getenv(EnvTornAPIKey))
}

func loadEnv(cfg *Config) {
	// a missing .env is fine, the variables may come from the process environment
	_ = godotenv.Load(cfg.App.EnvFile)
	cfg.Discord.Token = strings.TrimSpace(os.Getenv(EnvDiscordToken))
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.EnvFile == "" {
		cfg.App.EnvFile = ".env"
	}
	if cfg.Torn.WsURL == "" {
		cfg.Torn.WsURL = "wss://ws-centrifugo.torn.com/connection/websocket"
	}
	if cfg.Torn.APIBase == "" {
		cfg.Torn.APIBase = "https://api.torn.com"
	}
	if cfg.Torn.Channel == "" {
		cfg.Torn.Channel = "faction:chain"
	}
	if cfg.Torn.RequestsPerMinute <= 0 {
		cfg.Torn.RequestsPerMinute = 60
	}
	if cfg.Feed.MaxReconnectAttempts <= 0 {
		cfg.Feed.MaxReconnectAttempts = 3
	}
	if cfg.Feed.BaseDelayMs <= 0 {
		cfg.Feed.BaseDelayMs = 1000
	}
	if cfg.Feed.MaxDelayMs <= 0 {
		cfg.Feed.MaxDelayMs = 30000
	}
	if cfg.Feed.ConnectTimeoutSec <= 0 {
		cfg.Feed.ConnectTimeoutSec = 10
	}
	if cfg.Feed.PollIntervalSec <= 0 {
		cfg.Feed.PollIntervalSec = 30
	}
	if cfg.Feed.HealthCheckSec <= 0 {
		cfg.Feed.HealthCheckSec = 60
	}
	if cfg.Feed.StaleAfterSec == 0 {
		cfg.Feed.StaleAfterSec = 300
	}
	if cfg.Feed.ResetPushDelaySec <= 0 {
		cfg.Feed.ResetPushDelaySec = 5
	}
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = "!feed"
	}
	if cfg.ChainWatch.WarnTimeoutSec <= 0 {
		cfg.ChainWatch.WarnTimeoutSec = 60
	}
	if len(cfg.ChainWatch.Milestones) == 0 {
		cfg.ChainWatch.Milestones = append([]int64(nil), DefaultMilestones...)
	}
	if cfg.Storage.RetentionHours == 0 {
		cfg.Storage.RetentionHours = 168
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/brotherowl.db"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "brotherowl"
	}
}

func validate(cfg *Config) error {
	cfg.Discord.AdminIDs = normalizeIDs(cfg.Discord.AdminIDs)

	if strings.TrimSpace(cfg.Torn.APIBase) == "" {
		return errors.New("torn.api_base empty")
	}
	if cfg.Feed.MaxDelayMs < cfg.Feed.BaseDelayMs {
		return errors.New("feed.max_delay_ms smaller than feed.base_delay_ms")
	}
	if cfg.Discord.Enabled && cfg.Discord.Token == "" {
		return errors.New(EnvDiscordToken + " not set but discord enabled")
	}
	if cfg.Storage.Enabled && cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Enabled && cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}

func normalizeIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.TrimSpace(s)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
