package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zyfty/zyftyd/internal/core/domain"
)

type settingsRepository struct {
	querier
}

func NewSettingsRepository(db *sql.DB, placeholder Placeholder) domain.SettingsRepository {
	return &settingsRepository{querier{db, placeholder}}
}

func (r *settingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	var (
		settings domain.Settings
		bps      int64
	)
	err := r.queryRow(ctx, `
		SELECT admin, escrow_authority, fee_collector, mint_fee_bps, updated_at
		FROM settings WHERE id = 1`,
	).Scan(
		&settings.Admin, &settings.EscrowAuthority, &settings.FeeCollector, &bps,
		&settings.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	settings.MintFeeBps = uint32(bps)
	return &settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings domain.Settings) error {
	err := r.exec(ctx, `
		INSERT INTO settings (id, admin, escrow_authority, fee_collector, mint_fee_bps, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			admin = excluded.admin,
			escrow_authority = excluded.escrow_authority,
			fee_collector = excluded.fee_collector,
			mint_fee_bps = excluded.mint_fee_bps,
			updated_at = excluded.updated_at`,
		settings.Admin, settings.EscrowAuthority, settings.FeeCollector,
		int64(settings.MintFeeBps), settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

func (r *settingsRepository) Clear(ctx context.Context) error {
	if err := r.exec(ctx, `DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	return nil
}

func (r *settingsRepository) Close() {}
