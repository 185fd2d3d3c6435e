package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

type saleRepository struct {
	store *badgerhold.Store
}

func NewSaleRepository(config ...interface{}) (domain.SaleRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open sale store: %s", err)
	}
	return &saleRepository{store}, nil
}

func (r *saleRepository) GetSale(ctx context.Context, assetID uint64) (*domain.Sale, error) {
	var sale domain.Sale
	err := get(ctx, r.store, assetID, &sale)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale of asset %d: %w", assetID, err)
	}
	return &sale, nil
}

func (r *saleRepository) GetSalesByState(
	ctx context.Context, state domain.SaleState,
) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0)
	query := badgerhold.Where("State").Eq(state).SortBy("AssetID")
	if err := find(ctx, r.store, &sales, query); err != nil {
		return nil, fmt.Errorf("failed to find %s sales: %w", state, err)
	}
	return sales, nil
}

func (r *saleRepository) UpsertSale(ctx context.Context, sale domain.Sale) error {
	return upsert(ctx, r.store, sale.AssetID, &sale)
}

func (r *saleRepository) DeleteSale(ctx context.Context, assetID uint64) error {
	return remove(ctx, r.store, assetID, domain.Sale{})
}

func (r *saleRepository) Close() {
	// the shared store is closed by the repo manager
}
