package application

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/pkg/errors"
)

type registryService struct {
	repoManager ports.RepoManager
	ledger      ports.Ledger
	clock       ports.Clock
	locker      *Locker
}

// NewRegistryService persists the given settings unless the data store already holds some.
func NewRegistryService(
	repoManager ports.RepoManager, ledger ports.Ledger, clock ports.Clock, locker *Locker,
	settings domain.Settings,
) (RegistryService, error) {
	ctx := context.Background()
	current, err := repoManager.Settings().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry settings: %w", err)
	}
	if current == nil {
		if err := settings.Validate(); err != nil {
			return nil, err
		}
		settings.UpdatedAt = clock.Now().Unix()
		if err := repoManager.Settings().Upsert(ctx, settings); err != nil {
			return nil, fmt.Errorf("failed to store registry settings: %w", err)
		}
		log.WithFields(log.Fields{
			"admin":            settings.Admin,
			"escrow_authority": settings.EscrowAuthority,
			"fee_collector":    settings.FeeCollector,
			"mint_fee_bps":     settings.MintFeeBps,
		}).Info("initialized registry settings")
	}

	return &registryService{
		repoManager: repoManager,
		ledger:      ledger,
		clock:       clock,
		locker:      locker,
	}, nil
}

func (s *registryService) Mint(
	ctx context.Context, caller string, req MintRequest,
) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}

	keys := []string{mintKey}
	if req.PrimaryLien != "" {
		keys = append(keys, lienKey(req.PrimaryLien))
	}
	unlock := s.locker.Lock(keys...)
	defer unlock()

	now := s.now()
	var (
		asset *domain.Asset
		fee   uint64
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		settings, err := getSettings(ctx, s.repoManager)
		if err != nil {
			return nil, err
		}
		id, err := s.repoManager.Assets().NextAssetID(ctx)
		if err != nil {
			return nil, err
		}
		asset, err = domain.NewAsset(
			id, req.Owner, req.MetadataRef, req.SettlementAsset, req.DeclaredValue, now,
		)
		if err != nil {
			return nil, err
		}

		if req.PrimaryLien != "" {
			lien, err := getLien(ctx, s.repoManager, req.PrimaryLien)
			if err != nil {
				return nil, err
			}
			// a third party cannot pledge a lien on an asset minted for someone else
			if caller != lien.Provider && caller != req.Owner {
				return nil, errors.UNAUTHORIZED.New(
					"account %s can not mint asset of %s with lien %s",
					caller, req.Owner, lien.ID,
				).WithMetadata(errors.AccountMetadata{Account: caller, Expected: req.Owner})
			}
			if err := asset.SetPrimaryLien(lien); err != nil {
				return nil, err
			}
			if err := lien.Attach(id, now); err != nil {
				return nil, err
			}
			if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
				return nil, err
			}
		}
		if err := s.repoManager.Assets().UpsertAsset(ctx, *asset); err != nil {
			return nil, err
		}

		fee = settings.MintFee(req.DeclaredValue)
		return nonZero(ports.Transfer{
			Asset:   asset.SettlementAsset,
			From:    caller,
			To:      settings.FeeCollector,
			Amount:  fee,
			Spender: domain.RegistryAccount,
		}), nil
	}); err != nil {
		return 0, err
	}

	events := []domain.Event{domain.NewAssetMinted(*asset, fee)}
	if req.PrimaryLien != "" {
		events = append(events, domain.NewLienAdded(asset.ID, 0, req.PrimaryLien, now))
	}
	publish(ctx, s.repoManager.Events(), events...)

	log.WithFields(log.Fields{
		"asset": asset.ID,
		"owner": asset.Owner,
		"fee":   fee,
	}).Info("minted asset")
	return asset.ID, nil
}

func (s *registryService) GetAsset(ctx context.Context, id uint64) (*domain.Asset, error) {
	asset, err := getAsset(ctx, s.repoManager, id)
	if err != nil {
		return nil, toError(err)
	}
	return asset, nil
}

func (s *registryService) ListLiens(ctx context.Context, id uint64) ([]LienSlotInfo, error) {
	asset, err := getAsset(ctx, s.repoManager, id)
	if err != nil {
		return nil, toError(err)
	}
	slots := asset.LienSlots()
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		ids = append(ids, slot.LienID)
	}
	liens, err := s.repoManager.Liens().GetLiens(ctx, ids)
	if err != nil {
		return nil, toError(err)
	}
	byID := make(map[string]domain.Lien, len(liens))
	for _, lien := range liens {
		byID[lien.ID] = lien
	}

	now := s.now()
	infos := make([]LienSlotInfo, 0, len(slots))
	for _, slot := range slots {
		lien, ok := byID[slot.LienID]
		if !ok {
			log.Warnf("lien %s in slot %d of asset %d not found", slot.LienID, slot.Slot, id)
			continue
		}
		infos = append(infos, LienSlotInfo{
			Slot:     slot.Slot,
			LienInfo: LienInfo{Lien: lien, CurrentBalance: lien.BalanceAt(now)},
		})
	}
	return infos, nil
}

func (s *registryService) ProposeLien(
	ctx context.Context, caller string, id uint64, lienID string,
) error {
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		if _, err := getLien(ctx, s.repoManager, lienID); err != nil {
			return nil, err
		}
		if err := asset.ProposeLien(caller, lienID, now); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Assets().UpsertAsset(ctx, *asset)
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewLienProposed(id, lienID, now))
	return nil
}

func (s *registryService) AcceptLien(
	ctx context.Context, caller string, id uint64, lienID string,
) (int, error) {
	unlock, err := lockAsset(ctx, s.locker, s.repoManager, id, lienID)
	if err != nil {
		return -1, toError(err)
	}
	defer unlock()

	now := s.now()
	slot := -1
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		lien, err := getLien(ctx, s.repoManager, lienID)
		if err != nil {
			return nil, err
		}
		if slot, err = asset.AcceptLien(caller, lien, now); err != nil {
			return nil, err
		}
		if err := lien.Attach(id, now); err != nil {
			return nil, err
		}
		if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Assets().UpsertAsset(ctx, *asset)
	}); err != nil {
		return -1, err
	}

	publish(ctx, s.repoManager.Events(), domain.NewLienAdded(id, slot, lienID, now))
	return slot, nil
}

func (s *registryService) RemoveLien(
	ctx context.Context, caller string, id uint64, slot int,
) (string, error) {
	unlock, err := lockAsset(ctx, s.locker, s.repoManager, id)
	if err != nil {
		return "", toError(err)
	}
	defer unlock()

	now := s.now()
	var lienID string
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		if lienID, err = asset.RemoveLien(caller, slot, now); err != nil {
			return nil, err
		}
		if err := s.detach(ctx, now, lienID); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Assets().UpsertAsset(ctx, *asset)
	}); err != nil {
		return "", err
	}

	publish(ctx, s.repoManager.Events(), domain.NewLienRemoved(id, slot, lienID, now))
	return lienID, nil
}

func (s *registryService) IncreaseReserve(
	ctx context.Context, caller string, id, amount uint64,
) error {
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var asset *domain.Asset
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		var err error
		if asset, err = getAsset(ctx, s.repoManager, id); err != nil {
			return nil, err
		}
		if err := asset.IncreaseReserve(caller, amount, now); err != nil {
			return nil, err
		}
		if err := s.repoManager.Assets().UpsertAsset(ctx, *asset); err != nil {
			return nil, err
		}
		return []ports.Transfer{{
			Asset:   asset.SettlementAsset,
			From:    caller,
			To:      domain.RegistryAccount,
			Amount:  amount,
			Spender: domain.RegistryAccount,
		}}, nil
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewReserveIncreased(*asset, amount, now))
	return nil
}

func (s *registryService) RedeemReserve(
	ctx context.Context, caller string, id, amount uint64,
) error {
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var asset *domain.Asset
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		var err error
		if asset, err = getAsset(ctx, s.repoManager, id); err != nil {
			return nil, err
		}
		if err := asset.RedeemReserve(caller, amount, now); err != nil {
			return nil, err
		}
		if err := s.repoManager.Assets().UpsertAsset(ctx, *asset); err != nil {
			return nil, err
		}
		return []ports.Transfer{{
			Asset:  asset.SettlementAsset,
			From:   domain.RegistryAccount,
			To:     caller,
			Amount: amount,
		}}, nil
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewReserveRedeemed(*asset, amount, now))
	return nil
}

func (s *registryService) PayLien(
	ctx context.Context, caller string, id uint64, slot int, amount uint64,
) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	unlock, err := lockAsset(ctx, s.locker, s.repoManager, id)
	if err != nil {
		return 0, toError(err)
	}
	defer unlock()

	now := s.now()
	var (
		events []domain.Event
		paid   uint64
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		lienID, err := asset.LienAt(slot)
		if err != nil {
			return nil, err
		}
		lien, err := getLien(ctx, s.repoManager, lienID)
		if err != nil {
			return nil, err
		}
		events, paid = payoff(lien, caller, amount, now)
		if len(events) == 0 {
			return nil, nil
		}
		if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
			return nil, err
		}
		return nonZero(ports.Transfer{
			Asset:   lien.SettlementAsset,
			From:    caller,
			To:      lien.Provider,
			Amount:  paid,
			Spender: domain.RegistryAccount,
		}), nil
	}); err != nil {
		return 0, err
	}

	publish(ctx, s.repoManager.Events(), events...)
	return paid, nil
}

func (s *registryService) PayLienFull(
	ctx context.Context, caller string, id uint64, slot int,
) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if slot < 0 || slot >= domain.MaxLiens {
		return 0, errors.INVALID_ARGUMENT.New("slot %d out of range [0, %d)", slot, domain.MaxLiens)
	}
	return s.payFromReserve(ctx, id, func(asset *domain.Asset) ([]domain.LienSlot, error) {
		lienID, err := asset.LienAt(slot)
		if err != nil {
			return nil, err
		}
		return []domain.LienSlot{{Slot: slot, LienID: lienID}}, nil
	})
}

func (s *registryService) BalanceAccounts(
	ctx context.Context, caller string, id uint64,
) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	return s.payFromReserve(ctx, id, func(asset *domain.Asset) ([]domain.LienSlot, error) {
		return asset.LienSlots(), nil
	})
}

// payFromReserve pays the selected liens in slot order out of the asset reserve, each up to
// its current balance, and returns the total paid.
func (s *registryService) payFromReserve(
	ctx context.Context, id uint64,
	selectSlots func(asset *domain.Asset) ([]domain.LienSlot, error),
) (uint64, error) {
	unlock, err := lockAsset(ctx, s.locker, s.repoManager, id)
	if err != nil {
		return 0, toError(err)
	}
	defer unlock()

	now := s.now()
	var (
		events []domain.Event
		total  uint64
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		slots, err := selectSlots(asset)
		if err != nil {
			return nil, err
		}

		transfers := make([]ports.Transfer, 0, len(slots))
		for _, slot := range slots {
			lien, err := getLien(ctx, s.repoManager, slot.LienID)
			if err != nil {
				return nil, err
			}
			lienEvents, paid := payoff(lien, domain.RegistryAccount, asset.Reserve, now)
			if len(lienEvents) == 0 {
				continue
			}
			if err := asset.DrawReserve(paid, now); err != nil {
				return nil, err
			}
			if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
				return nil, err
			}
			events = append(events, lienEvents...)
			total += paid
			transfers = append(transfers, nonZero(ports.Transfer{
				Asset:  lien.SettlementAsset,
				From:   domain.RegistryAccount,
				To:     lien.Provider,
				Amount: paid,
			})...)
		}
		if total == 0 {
			return transfers, nil
		}
		return transfers, s.repoManager.Assets().UpsertAsset(ctx, *asset)
	}); err != nil {
		return 0, err
	}

	publish(ctx, s.repoManager.Events(), events...)
	return total, nil
}

func (s *registryService) Destroy(ctx context.Context, caller string, id uint64) error {
	unlock, err := lockAsset(ctx, s.locker, s.repoManager, id)
	if err != nil {
		return toError(err)
	}
	defer unlock()

	now := s.now()
	var (
		detached []string
		refund   uint64
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		if detached, refund, err = asset.Destroy(caller, now); err != nil {
			return nil, err
		}
		if err := s.detach(ctx, now, detached...); err != nil {
			return nil, err
		}
		if err := s.repoManager.Assets().DeleteAsset(ctx, id); err != nil {
			return nil, err
		}
		return nonZero(ports.Transfer{
			Asset:  asset.SettlementAsset,
			From:   domain.RegistryAccount,
			To:     caller,
			Amount: refund,
		}), nil
	}); err != nil {
		return err
	}

	publish(
		ctx, s.repoManager.Events(), domain.NewAssetDestroyed(id, caller, detached, refund, now),
	)
	log.WithField("asset", id).Info("destroyed asset")
	return nil
}

func (s *registryService) TransferAsset(
	ctx context.Context, caller string, id uint64, from, to string,
) error {
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var event domain.Event
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		if event, err = transferCustody(
			ctx, s.repoManager, caller, asset, from, to, now,
		); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Assets().UpsertAsset(ctx, *asset)
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), event)
	return nil
}

func (s *registryService) UpdateEscrow(ctx context.Context, caller, authority string) error {
	now := s.now()
	var previous string
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		settings, err := getSettings(ctx, s.repoManager)
		if err != nil {
			return nil, err
		}
		previous = settings.EscrowAuthority
		if err := settings.UpdateEscrow(caller, authority, now); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Settings().Upsert(ctx, *settings)
	}); err != nil {
		return err
	}

	publish(
		ctx, s.repoManager.Events(), domain.NewEscrowAuthorityUpdated(previous, authority, now),
	)
	log.WithFields(log.Fields{
		"previous": previous,
		"current":  authority,
	}).Info("updated escrow authority")
	return nil
}

func (s *registryService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	settings, err := getSettings(ctx, s.repoManager)
	if err != nil {
		return nil, toError(err)
	}
	return settings, nil
}

func (s *registryService) GetAssetEvents(
	ctx context.Context, id uint64,
) ([]domain.Event, error) {
	aggregateID := domain.AssetEventId(id)
	events, err := s.repoManager.Events().Load(ctx, domain.AssetTopic, aggregateID)
	if err != nil {
		return nil, toError(err)
	}
	saleEvents, err := s.repoManager.Events().Load(ctx, domain.SaleTopic, aggregateID)
	if err != nil {
		return nil, toError(err)
	}
	events = append(events, saleEvents...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].GetTimestamp() < events[j].GetTimestamp()
	})
	return events, nil
}

// detach releases the given liens from their asset, ids that no longer exist are skipped.
func (s *registryService) detach(ctx context.Context, now int64, ids ...string) error {
	for _, id := range ids {
		lien, err := s.repoManager.Liens().GetLien(ctx, id)
		if err != nil {
			return err
		}
		if lien == nil {
			continue
		}
		lien.Detach(now)
		if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
			return err
		}
	}
	return nil
}

func (s *registryService) now() int64 {
	return s.clock.Now().Unix()
}
