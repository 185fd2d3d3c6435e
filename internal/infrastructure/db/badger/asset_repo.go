package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

const assetSequenceKey = "asset_sequence"

type assetSequence struct {
	Last uint64
}

type assetRepository struct {
	store *badgerhold.Store
}

func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset store: %s", err)
	}
	return &assetRepository{store}, nil
}

func (r *assetRepository) NextAssetID(ctx context.Context) (uint64, error) {
	var seq assetSequence
	if err := get(ctx, r.store, assetSequenceKey, &seq); err != nil &&
		!errors.Is(err, badgerhold.ErrNotFound) {
		return 0, fmt.Errorf("failed to get asset sequence: %w", err)
	}
	seq.Last++
	if err := upsert(ctx, r.store, assetSequenceKey, &seq); err != nil {
		return 0, fmt.Errorf("failed to update asset sequence: %w", err)
	}
	return seq.Last, nil
}

func (r *assetRepository) GetAsset(ctx context.Context, id uint64) (*domain.Asset, error) {
	var asset domain.Asset
	err := get(ctx, r.store, id, &asset)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %d: %w", id, err)
	}
	return &asset, nil
}

func (r *assetRepository) GetAssetsByOwner(
	ctx context.Context, owner string,
) ([]domain.Asset, error) {
	assets := make([]domain.Asset, 0)
	query := badgerhold.Where("Owner").Eq(owner).SortBy("ID")
	if err := find(ctx, r.store, &assets, query); err != nil {
		return nil, fmt.Errorf("failed to find assets of %s: %w", owner, err)
	}
	return assets, nil
}

func (r *assetRepository) UpsertAsset(ctx context.Context, asset domain.Asset) error {
	return upsert(ctx, r.store, asset.ID, &asset)
}

func (r *assetRepository) DeleteAsset(ctx context.Context, id uint64) error {
	return remove(ctx, r.store, id, domain.Asset{})
}

func (r *assetRepository) Close() {
	// the shared store is closed by the repo manager
}
