package application

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/pkg/errors"
)

// toError normalizes err into a coded error, infrastructure failures become INTERNAL_ERROR.
func toError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(errors.Error); ok {
		return err
	}
	return errors.INTERNAL_ERROR.Wrap(err)
}

// settle runs fn inside a data store transaction and applies the transfers it returns to the
// ledger right before the transaction commits. If the commit fails after the ledger accepted
// the batch, the batch is reverted.
func settle(
	ctx context.Context, repoManager ports.RepoManager, ledger ports.Ledger,
	fn func(ctx context.Context) ([]ports.Transfer, error),
) error {
	var applied []ports.Transfer
	err := repoManager.RunInTx(ctx, func(ctx context.Context) error {
		transfers, err := fn(ctx)
		if err != nil {
			return err
		}
		if len(transfers) > 0 {
			if err := ledger.Apply(ctx, transfers); err != nil {
				return err
			}
		}
		applied = transfers
		return nil
	})
	if err != nil && len(applied) > 0 {
		compensate(ctx, ledger, applied)
	}
	return toError(err)
}

// compensate undoes an applied batch and restores the allowances it consumed.
func compensate(ctx context.Context, ledger ports.Ledger, applied []ports.Transfer) {
	reversed := make([]ports.Transfer, 0, len(applied))
	for i := len(applied) - 1; i >= 0; i-- {
		if applied[i].Amount > 0 {
			reversed = append(reversed, applied[i].Reverse())
		}
	}
	if err := ledger.Apply(ctx, reversed); err != nil {
		log.WithError(err).WithField("transfers", applied).
			Error("failed to revert ledger transfers of aborted operation")
		return
	}

	for _, t := range applied {
		if t.Spender == "" || t.Spender == t.From || t.Amount == 0 {
			continue
		}
		allowance, err := ledger.Allowance(ctx, t.Asset, t.From, t.Spender)
		if err == nil {
			err = ledger.Approve(ctx, t.Asset, t.From, t.Spender, allowance+t.Amount)
		}
		if err != nil {
			log.WithError(err).Errorf(
				"failed to restore allowance of %s for spender %s", t.From, t.Spender,
			)
		}
	}
	log.Warnf("reverted %d ledger transfers of aborted operation", len(reversed))
}

// publish stores the events of a committed operation grouped by aggregate, keeping their
// order. A failure does not undo the operation.
func publish(ctx context.Context, repo domain.EventRepository, events ...domain.Event) {
	type aggregate struct {
		topic, id string
	}
	order := make([]aggregate, 0)
	grouped := make(map[aggregate][]domain.Event)
	for _, e := range events {
		key := aggregate{e.GetTopic(), e.GetId()}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], e)
	}

	for _, key := range order {
		if err := repo.Save(ctx, key.topic, key.id, grouped[key]); err != nil {
			log.WithError(err).Warnf("failed to save %s events of %s", key.topic, key.id)
		}
	}
}

// lockAsset takes the asset key, then the keys of the liens it holds followed by extra lien
// keys. The returned func releases all of them.
func lockAsset(
	ctx context.Context, locker *Locker, repoManager ports.RepoManager, id uint64,
	extra ...string,
) (func(), error) {
	unlockAsset := locker.Lock(assetKey(id))
	asset, err := getAsset(ctx, repoManager, id)
	if err != nil {
		unlockAsset()
		return nil, err
	}
	keys := make([]string, 0, domain.MaxLiens+len(extra))
	for _, slot := range asset.LienSlots() {
		keys = append(keys, lienKey(slot.LienID))
	}
	for _, lienID := range extra {
		keys = append(keys, lienKey(lienID))
	}
	unlockLiens := locker.Lock(keys...)
	return func() {
		unlockLiens()
		unlockAsset()
	}, nil
}

func getSettings(ctx context.Context, repoManager ports.RepoManager) (*domain.Settings, error) {
	settings, err := repoManager.Settings().Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, errors.INVALID_STATE.New("registry settings not initialized")
	}
	return settings, nil
}

func getAsset(
	ctx context.Context, repoManager ports.RepoManager, id uint64,
) (*domain.Asset, error) {
	asset, err := repoManager.Assets().GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, errors.ASSET_NOT_FOUND.New("asset %d not found", id).
			WithMetadata(errors.AssetMetadata{AssetId: id})
	}
	return asset, nil
}

func getLien(
	ctx context.Context, repoManager ports.RepoManager, id string,
) (*domain.Lien, error) {
	lien, err := repoManager.Liens().GetLien(ctx, id)
	if err != nil {
		return nil, err
	}
	if lien == nil {
		return nil, errors.LIEN_NOT_FOUND.New("lien %s not found", id).
			WithMetadata(errors.LienMetadata{LienId: id})
	}
	return lien, nil
}

func getSale(
	ctx context.Context, repoManager ports.RepoManager, assetID uint64,
) (*domain.Sale, error) {
	sale, err := repoManager.Sales().GetSale(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if sale == nil || sale.State == domain.SaleStateNone {
		return nil, errors.SALE_NOT_FOUND.New("asset %d is not for sale", assetID).
			WithMetadata(errors.AssetMetadata{AssetId: assetID})
	}
	return sale, nil
}

// transferCustody moves the asset to a new owner on behalf of gate, which must be the
// registry escrow authority.
func transferCustody(
	ctx context.Context, repoManager ports.RepoManager, gate string, asset *domain.Asset,
	from, to string, now int64,
) (domain.Event, error) {
	settings, err := getSettings(ctx, repoManager)
	if err != nil {
		return nil, err
	}
	if err := settings.RequireEscrowAuthority(gate); err != nil {
		return nil, err
	}
	if asset.Owner != from {
		return nil, errors.UNAUTHORIZED.New(
			"asset %d is not owned by %s", asset.ID, from,
		).WithMetadata(errors.AccountMetadata{Account: from, Expected: asset.Owner})
	}
	if err := asset.TransferOwnership(to, now); err != nil {
		return nil, err
	}
	return domain.NewAssetTransferred(asset.ID, from, to, now), nil
}

// payoff updates and pays the lien with amount taken from payer, returning the lien events and
// the amount actually paid.
func payoff(lien *domain.Lien, payer string, amount uint64, now int64) ([]domain.Event, uint64) {
	events := make([]domain.Event, 0, 2)
	if lien.Update(now) {
		events = append(events, domain.NewLienUpdated(*lien, now))
	}
	paid := lien.Pay(amount, now)
	if paid > 0 {
		events = append(events, domain.NewLienPaid(*lien, payer, paid, now))
	}
	return events, paid
}
