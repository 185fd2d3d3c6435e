package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

type lienRepository struct {
	store *badgerhold.Store
}

func NewLienRepository(config ...interface{}) (domain.LienRepository, error) {
	store, err := storeFromConfig(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open lien store: %s", err)
	}
	return &lienRepository{store}, nil
}

func (r *lienRepository) GetLien(ctx context.Context, id string) (*domain.Lien, error) {
	var lien domain.Lien
	err := get(ctx, r.store, id, &lien)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lien %s: %w", id, err)
	}
	return &lien, nil
}

func (r *lienRepository) GetLiens(ctx context.Context, ids []string) ([]domain.Lien, error) {
	liens := make([]domain.Lien, 0, len(ids))
	for _, id := range ids {
		lien, err := r.GetLien(ctx, id)
		if err != nil {
			return nil, err
		}
		if lien == nil {
			continue
		}
		liens = append(liens, *lien)
	}
	return liens, nil
}

func (r *lienRepository) GetLiensByProvider(
	ctx context.Context, provider string,
) ([]domain.Lien, error) {
	liens := make([]domain.Lien, 0)
	query := badgerhold.Where("Provider").Eq(provider).SortBy("CreatedAt")
	if err := find(ctx, r.store, &liens, query); err != nil {
		return nil, fmt.Errorf("failed to find liens of %s: %w", provider, err)
	}
	return liens, nil
}

func (r *lienRepository) UpsertLien(ctx context.Context, lien domain.Lien) error {
	return upsert(ctx, r.store, lien.ID, &lien)
}

func (r *lienRepository) Close() {
	// the shared store is closed by the repo manager
}
