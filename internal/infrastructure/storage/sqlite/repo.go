package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"brotherowl/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS chain_latest (
  source TEXT PRIMARY KEY,
  current INTEGER NOT NULL,
  timeout INTEGER NOT NULL,
  payload TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chain_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  current INTEGER NOT NULL,
  timeout INTEGER NOT NULL,
  payload TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chain_snapshots_ts ON chain_snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS chain_alerts (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  current INTEGER NOT NULL,
  message TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chain_alerts_ts ON chain_alerts(ts_ms);
CREATE INDEX IF NOT EXISTS idx_chain_alerts_kind ON chain_alerts(kind);
`)
	return err
}

func (r *Repo) SaveChainSnapshot(ctx context.Context, snap port.ChainSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chain_latest(source, current, timeout, payload, ts_ms)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
		current=excluded.current, timeout=excluded.timeout, payload=excluded.payload, ts_ms=excluded.ts_ms
	`, snap.Source, snap.Current, snap.Timeout, snap.Payload, snap.Ts); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chain_snapshots(source, current, timeout, payload, ts_ms) VALUES(?, ?, ?, ?, ?)
	`, snap.Source, snap.Current, snap.Timeout, snap.Payload, snap.Ts); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestChainSnapshot returns the newest snapshot across sources, nil if none.
func (r *Repo) LatestChainSnapshot(ctx context.Context) (*port.ChainSnapshot, error) {
	var s port.ChainSnapshot
	err := r.db.QueryRowContext(ctx, `
		SELECT source, current, timeout, payload, ts_ms FROM chain_latest ORDER BY ts_ms DESC LIMIT 1
	`).Scan(&s.Source, &s.Current, &s.Timeout, &s.Payload, &s.Ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertAlert(ctx context.Context, a port.ChainAlert) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chain_alerts(id, kind, current, message, ts_ms) VALUES(?, ?, ?, ?, ?)`,
		a.ID, a.Kind, a.Current, a.Message, a.Ts)
	return err
}

// DeleteSnapshotsBefore trims snapshot history older than ts (unix ms).
func (r *Repo) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chain_snapshots WHERE ts_ms < ?`, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var (
	_ port.ChainRepository = (*Repo)(nil)
	_ port.SnapshotPruner  = (*Repo)(nil)
)
