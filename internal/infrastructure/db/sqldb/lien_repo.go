package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zyfty/zyftyd/internal/core/domain"
)

const lienColumns = `id, provider, balance, settlement_asset, per_period, period, last_update,
	asset_id, created_at, updated_at`

type lienRepository struct {
	querier
}

func NewLienRepository(db *sql.DB, placeholder Placeholder) domain.LienRepository {
	return &lienRepository{querier{db, placeholder}}
}

func (r *lienRepository) GetLien(ctx context.Context, id string) (*domain.Lien, error) {
	row := r.queryRow(ctx, `SELECT `+lienColumns+` FROM lien WHERE id = ?`, id)
	lien, err := scanLien(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lien %s: %w", id, err)
	}
	return lien, nil
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
	rows, err := r.query(
		ctx,
		`SELECT `+lienColumns+` FROM lien WHERE provider = ? ORDER BY created_at, id`,
		provider,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get liens of %s: %w", provider, err)
	}
	// nolint
	defer rows.Close()

	liens := make([]domain.Lien, 0)
	for rows.Next() {
		lien, err := scanLien(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lien: %w", err)
		}
		liens = append(liens, *lien)
	}
	return liens, rows.Err()
}

func (r *lienRepository) UpsertLien(ctx context.Context, lien domain.Lien) error {
	var perPeriod, period, lastUpdate sql.NullInt64
	if lien.Accrual != nil {
		perPeriod = toNullInt64(int64(lien.Accrual.PerPeriod), true)
		period = toNullInt64(lien.Accrual.Period, true)
		lastUpdate = toNullInt64(lien.Accrual.LastUpdate, true)
	}

	err := r.exec(ctx, `
		INSERT INTO lien (`+lienColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			balance = excluded.balance,
			per_period = excluded.per_period,
			period = excluded.period,
			last_update = excluded.last_update,
			asset_id = excluded.asset_id,
			updated_at = excluded.updated_at`,
		lien.ID, lien.Provider, int64(lien.Balance), lien.SettlementAsset,
		perPeriod, period, lastUpdate, int64(lien.AssetID), lien.CreatedAt, lien.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lien %s: %w", lien.ID, err)
	}
	return nil
}

func (r *lienRepository) Close() {}

func scanLien(row scanner) (*domain.Lien, error) {
	var (
		lien                          domain.Lien
		perPeriod, period, lastUpdate sql.NullInt64
	)
	if err := row.Scan(
		&lien.ID, &lien.Provider, &lien.Balance, &lien.SettlementAsset,
		&perPeriod, &period, &lastUpdate, &lien.AssetID, &lien.CreatedAt, &lien.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if period.Valid {
		lien.Accrual = &domain.Accrual{
			PerPeriod:  uint64(perPeriod.Int64),
			Period:     period.Int64,
			LastUpdate: lastUpdate.Int64,
		}
	}
	return &lien, nil
}
