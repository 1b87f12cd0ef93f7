package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvDiscordToken, "")
	path := writeConfig(t, `
[app]
env_file = "missing.env"

[torn]
faction_id = "123"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Feed.MaxReconnectAttempts != 3 || cfg.Feed.PollIntervalSec != 30 || cfg.Feed.StaleAfterSec != 300 {
		t.Errorf("unexpected feed defaults: %+v", cfg.Feed)
	}
	if cfg.Torn.FactionID != "123" || cfg.Torn.Channel != "faction:chain" {
		t.Errorf("unexpected torn section: %+v", cfg.Torn)
	}
	if len(cfg.ChainWatch.Milestones) != len(DefaultMilestones) {
		t.Errorf("expected default milestones, got %v", cfg.ChainWatch.Milestones)
	}
	if cfg.Storage.RetentionHours != 168 {
		t.Errorf("expected 168h retention, got %d", cfg.Storage.RetentionHours)
	}
}

func TestLoadDiscordNeedsToken(t *testing.T) {
	t.Setenv(EnvDiscordToken, "")
	path := writeConfig(t, `
[app]
env_file = "missing.env"

[discord]
enabled = true
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error when discord is enabled without a token")
	}

	t.Setenv(EnvDiscordToken, "abc")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Discord.Token != "abc" {
		t.Errorf("expected token from env, got %q", cfg.Discord.Token)
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv(EnvDiscordToken, "")
	os.Unsetenv(EnvDiscordToken)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("DISCORD_TOKEN=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "[app]\nenv_file = \""+filepath.ToSlash(envPath)+"\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Discord.Token != "from-file" {
		t.Errorf("expected token from .env, got %q", cfg.Discord.Token)
	}
}

func TestValidateAdminIDs(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Discord.AdminIDs = []string{" 1 ", "", "1", "2"}
	if err := validate(&cfg); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Discord.AdminIDs) != 2 || cfg.Discord.AdminIDs[0] != "1" {
		t.Errorf("unexpected admin ids %v", cfg.Discord.AdminIDs)
	}
}

func TestValidateStorage(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Storage.Enabled = true
	cfg.Storage.Redis.Enabled = true
	if err := validate(&cfg); err == nil {
		t.Error("expected error for redis without addr")
	}
}
