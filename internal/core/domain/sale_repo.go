package domain

import "context"

type SaleRepository interface {
	// GetSale returns nil if the asset has no sale record.
	GetSale(ctx context.Context, assetID uint64) (*Sale, error)
	GetSalesByState(ctx context.Context, state SaleState) ([]Sale, error)
	UpsertSale(ctx context.Context, sale Sale) error
	DeleteSale(ctx context.Context, assetID uint64) error
	Close()
}
