package container

import (
	"context"
	"path/filepath"
	"testing"

	"brotherowl/internal/application/port"
	"brotherowl/internal/infrastructure/config"
)

func TestContainerWithSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Enabled = true
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "test_container.db")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	defer c.Close()

	if c.SQLiteRepo() == nil {
		t.Fatal("expected SQLiteRepo, got nil")
	}

	ctx := context.Background()
	repo := c.Repository()
	if err := repo.SaveChainSnapshot(ctx, port.ChainSnapshot{Source: "http", Current: 7, Timeout: 120, Payload: "{}", Ts: 1234567890}); err != nil {
		t.Fatalf("SaveChainSnapshot failed: %v", err)
	}

	latest, err := repo.LatestChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestChainSnapshot failed: %v", err)
	}
	if latest == nil || latest.Current != 7 {
		t.Errorf("expected current 7, got %+v", latest)
	}
}

func TestContainerStorageDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.SQLite.Enabled = true

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}

	if c.SQLiteRepo() != nil {
		t.Error("sqlite must stay closed while storage is disabled")
	}
	if err := c.Repository().InsertAlert(context.Background(), port.ChainAlert{ID: "a"}); err != nil {
		t.Errorf("expected no-op repository, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
