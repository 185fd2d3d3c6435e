package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zyfty/zyftyd/internal/core/domain"
)

const saleColumns = `asset_id, seller, buyer, settlement_asset, price, sale_window, listed_at,
	bought_at, state, updated_at`

type saleRepository struct {
	querier
}

func NewSaleRepository(db *sql.DB, placeholder Placeholder) domain.SaleRepository {
	return &saleRepository{querier{db, placeholder}}
}

func (r *saleRepository) GetSale(ctx context.Context, assetID uint64) (*domain.Sale, error) {
	row := r.queryRow(ctx, `SELECT `+saleColumns+` FROM sale WHERE asset_id = ?`, int64(assetID))
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale of asset %d: %w", assetID, err)
	}
	return sale, nil
}

func (r *saleRepository) GetSalesByState(
	ctx context.Context, state domain.SaleState,
) ([]domain.Sale, error) {
	rows, err := r.query(
		ctx, `SELECT `+saleColumns+` FROM sale WHERE state = ? ORDER BY asset_id`, int(state),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s sales: %w", state, err)
	}
	// nolint
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

func (r *saleRepository) UpsertSale(ctx context.Context, sale domain.Sale) error {
	err := r.exec(ctx, `
		INSERT INTO sale (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset_id) DO UPDATE SET
			seller = excluded.seller,
			buyer = excluded.buyer,
			settlement_asset = excluded.settlement_asset,
			price = excluded.price,
			sale_window = excluded.sale_window,
			listed_at = excluded.listed_at,
			bought_at = excluded.bought_at,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		int64(sale.AssetID), sale.Seller, sale.Buyer, sale.SettlementAsset, int64(sale.Price),
		sale.Window,
		sale.ListedAt, sale.BoughtAt, int(sale.State), sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sale of asset %d: %w", sale.AssetID, err)
	}
	return nil
}

func (r *saleRepository) DeleteSale(ctx context.Context, assetID uint64) error {
	if err := r.exec(ctx, `DELETE FROM sale WHERE asset_id = ?`, int64(assetID)); err != nil {
		return fmt.Errorf("failed to delete sale of asset %d: %w", assetID, err)
	}
	return nil
}

func (r *saleRepository) Close() {}

func scanSale(row scanner) (*domain.Sale, error) {
	var (
		sale  domain.Sale
		state int
	)
	if err := row.Scan(
		&sale.AssetID, &sale.Seller, &sale.Buyer, &sale.SettlementAsset, &sale.Price,
		&sale.Window, &sale.ListedAt, &sale.BoughtAt, &state, &sale.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sale.State = domain.SaleState(state)
	return &sale, nil
}
