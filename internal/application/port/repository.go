package port

import "context"

type ChainSnapshot struct {
	Source  string `json:"source"`
	Current int64  `json:"current"`
	Timeout int64  `json:"timeout"`
	Payload string `json:"payload"` // raw chain json
	Ts      int64  `json:"ts"`      // unix ms
}

type ChainAlert struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // "timeout", "milestone", "ended"
	Current int64  `json:"current"`
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

type ChainRepository interface {
	// Latest chain state, history where the backend keeps it
	SaveChainSnapshot(ctx context.Context, snap ChainSnapshot) error
	LatestChainSnapshot(ctx context.Context) (*ChainSnapshot, error)

	// Alerts posted to Discord
	InsertAlert(ctx context.Context, alert ChainAlert) error
}

// SnapshotPruner is implemented by backends that keep snapshot history.
type SnapshotPruner interface {
	// DeleteSnapshotsBefore removes history older than ts (unix ms).
	DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error)
}
