package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zyfty/zyftyd/internal/core/domain"
)

const assetColumns = `id, owner, metadata_ref, settlement_asset, declared_value,
	lien_0, lien_1, lien_2, lien_3, reserve, proposal_lien_id, proposed_at,
	created_at, updated_at`

type assetRepository struct {
	querier
}

func NewAssetRepository(db *sql.DB, placeholder Placeholder) domain.AssetRepository {
	return &assetRepository{querier{db, placeholder}}
}

func (r *assetRepository) NextAssetID(ctx context.Context) (uint64, error) {
	return r.nextSequence(ctx, "asset")
}

func (r *assetRepository) GetAsset(ctx context.Context, id uint64) (*domain.Asset, error) {
	row := r.queryRow(ctx, `SELECT `+assetColumns+` FROM asset WHERE id = ?`, int64(id))
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %d: %w", id, err)
	}
	return asset, nil
}

func (r *assetRepository) GetAssetsByOwner(
	ctx context.Context, owner string,
) ([]domain.Asset, error) {
	rows, err := r.query(
		ctx, `SELECT `+assetColumns+` FROM asset WHERE owner = ? ORDER BY id`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets of %s: %w", owner, err)
	}
	// nolint
	defer rows.Close()

	assets := make([]domain.Asset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

func (r *assetRepository) UpsertAsset(ctx context.Context, asset domain.Asset) error {
	var (
		proposalLienID string
		proposedAt     int64
	)
	if asset.Proposal != nil {
		proposalLienID = asset.Proposal.LienID
		proposedAt = asset.Proposal.ProposedAt
	}

	err := r.exec(ctx, `
		INSERT INTO asset (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner,
			metadata_ref = excluded.metadata_ref,
			settlement_asset = excluded.settlement_asset,
			declared_value = excluded.declared_value,
			lien_0 = excluded.lien_0,
			lien_1 = excluded.lien_1,
			lien_2 = excluded.lien_2,
			lien_3 = excluded.lien_3,
			reserve = excluded.reserve,
			proposal_lien_id = excluded.proposal_lien_id,
			proposed_at = excluded.proposed_at,
			updated_at = excluded.updated_at`,
		int64(asset.ID), asset.Owner, asset.MetadataRef, asset.SettlementAsset,
		int64(asset.DeclaredValue), asset.Liens[0], asset.Liens[1], asset.Liens[2],
		asset.Liens[3], int64(asset.Reserve),
		toNullString(proposalLienID), toNullInt64(proposedAt, asset.Proposal != nil),
		asset.CreatedAt, asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset %d: %w", asset.ID, err)
	}
	return nil
}

func (r *assetRepository) DeleteAsset(ctx context.Context, id uint64) error {
	if err := r.exec(ctx, `DELETE FROM asset WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("failed to delete asset %d: %w", id, err)
	}
	return nil
}

func (r *assetRepository) Close() {}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (*domain.Asset, error) {
	var (
		asset          domain.Asset
		proposalLienID sql.NullString
		proposedAt     sql.NullInt64
	)
	if err := row.Scan(
		&asset.ID, &asset.Owner, &asset.MetadataRef, &asset.SettlementAsset,
		&asset.DeclaredValue, &asset.Liens[0], &asset.Liens[1], &asset.Liens[2],
		&asset.Liens[3], &asset.Reserve, &proposalLienID, &proposedAt,
		&asset.CreatedAt, &asset.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if proposalLienID.Valid {
		asset.Proposal = &domain.LienProposal{
			LienID:     proposalLienID.String,
			ProposedAt: proposedAt.Int64,
		}
	}
	return &asset, nil
}
