package chainwatch

import (
	"context"

	"brotherowl/internal/application/port"
)

type noopRepo struct{}

func NewNoopRepo() port.ChainRepository { return &noopRepo{} }

func (n *noopRepo) SaveChainSnapshot(ctx context.Context, snap port.ChainSnapshot) error {
	return nil
}
func (n *noopRepo) LatestChainSnapshot(ctx context.Context) (*port.ChainSnapshot, error) {
	return nil, nil
}
func (n *noopRepo) InsertAlert(ctx context.Context, alert port.ChainAlert) error {
	return nil
}
