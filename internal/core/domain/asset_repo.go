package domain

import "context"

type AssetRepository interface {
	// NextAssetID reserves the next sequential token id, starting at 1.
	NextAssetID(ctx context.Context) (uint64, error)
	// GetAsset returns nil if no asset exists with the given id.
	GetAsset(ctx context.Context, id uint64) (*Asset, error)
	GetAssetsByOwner(ctx context.Context, owner string) ([]Asset, error)
	UpsertAsset(ctx context.Context, asset Asset) error
	DeleteAsset(ctx context.Context, id uint64) error
	Close()
}
