package composite

import (
	"context"

	"brotherowl/internal/application/port"
)

type Repo struct {
	repos []port.ChainRepository
}

func New(repos ...port.ChainRepository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.ChainRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) SaveChainSnapshot(ctx context.Context, snap port.ChainSnapshot) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveChainSnapshot(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LatestChainSnapshot asks each backend in order and returns the first hit.
func (r *Repo) LatestChainSnapshot(ctx context.Context) (*port.ChainSnapshot, error) {
	var firstErr error
	for _, repo := range r.repos {
		snap, err := repo.LatestChainSnapshot(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if snap != nil {
			return snap, nil
		}
	}
	return nil, firstErr
}

func (r *Repo) InsertAlert(ctx context.Context, a port.ChainAlert) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertAlert(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeleteSnapshotsBefore trims every backend that keeps history.
func (r *Repo) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	var total int64
	var firstErr error
	for _, repo := range r.repos {
		pruner, ok := repo.(port.SnapshotPruner)
		if !ok {
			continue
		}
		n, err := pruner.DeleteSnapshotsBefore(ctx, ts)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		total += n
	}
	return total, firstErr
}

var (
	_ port.ChainRepository = (*Repo)(nil)
	_ port.SnapshotPruner  = (*Repo)(nil)
)
