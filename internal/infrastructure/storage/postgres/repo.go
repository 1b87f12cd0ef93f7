package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"brotherowl/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
CREATE TABLE IF NOT EXISTS chain_snapshots (
  id BIGSERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  current BIGINT NOT NULL,
  timeout BIGINT NOT NULL,
  payload JSONB NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chain_snapshots_ts ON chain_snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS chain_alerts (
  id UUID PRIMARY KEY,
  kind TEXT NOT NULL,
  current BIGINT NOT NULL,
  message TEXT NOT NULL,
  ts_ms BIGINT NOT NULL
);
`)
	return err
}

func (r *Repo) SaveChainSnapshot(ctx context.Context, snap port.ChainSnapshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chain_snapshots(source, current, timeout, payload, ts_ms) VALUES($1, $2, $3, $4, $5)`,
		snap.Source, snap.Current, snap.Timeout, snap.Payload, snap.Ts)
	return err
}

func (r *Repo) LatestChainSnapshot(ctx context.Context) (*port.ChainSnapshot, error) {
	var s port.ChainSnapshot
	err := r.db.QueryRowContext(ctx,
		`SELECT source, current, timeout, payload::text, ts_ms FROM chain_snapshots ORDER BY ts_ms DESC, id DESC LIMIT 1`,
	).Scan(&s.Source, &s.Current, &s.Timeout, &s.Payload, &s.Ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertAlert(ctx context.Context, a port.ChainAlert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chain_alerts(id, kind, current, message, ts_ms) VALUES($1, $2, $3, $4, $5)`,
		a.ID, a.Kind, a.Current, a.Message, a.Ts)
	return err
}

func (r *Repo) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chain_snapshots WHERE ts_ms < $1`, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var (
	_ port.ChainRepository = (*Repo)(nil)
	_ port.SnapshotPruner  = (*Repo)(nil)
)
