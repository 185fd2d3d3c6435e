package application

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/pkg/errors"
)

// escrowService holds listed assets and buyer deposits on the escrow pool account. It moves
// custody through the registry transfer gate, so the registry escrow authority must be the
// escrow account for sales to go through.
type escrowService struct {
	repoManager ports.RepoManager
	ledger      ports.Ledger
	clock       ports.Clock
	locker      *Locker
}

func NewEscrowService(
	repoManager ports.RepoManager, ledger ports.Ledger, clock ports.Clock, locker *Locker,
) EscrowService {
	return &escrowService{
		repoManager: repoManager,
		ledger:      ledger,
		clock:       clock,
		locker:      locker,
	}
}

func (s *escrowService) SellProperty(
	ctx context.Context, caller string, id, price uint64, window int64,
) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var (
		sale    *domain.Sale
		custody domain.Event
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		current, err := s.repoManager.Sales().GetSale(ctx, id)
		if err != nil {
			return nil, err
		}
		// custody sits with the escrow during a sale, so this goes before the owner check
		if current != nil && current.State.IsActive() {
			return nil, errors.SALE_ALREADY_ACTIVE.New(
				"asset %d sale is %s", id, current.State,
			).WithMetadata(errors.StateMetadata{AssetId: id, State: current.State.String()})
		}
		if err := asset.RequireOwner(caller); err != nil {
			return nil, err
		}

		if sale, err = domain.NewSale(
			id, caller, asset.SettlementAsset, price, window, now,
		); err != nil {
			return nil, err
		}
		if custody, err = transferCustody(
			ctx, s.repoManager, domain.EscrowAccount, asset, caller, domain.EscrowAccount, now,
		); err != nil {
			return nil, err
		}
		if err := s.repoManager.Assets().UpsertAsset(ctx, *asset); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Sales().UpsertSale(ctx, *sale)
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewPropertyListed(*sale), custody)

	log.WithFields(log.Fields{
		"asset":  id,
		"seller": caller,
		"price":  price,
		"window": window,
	}).Info("listed property")
	return nil
}

func (s *escrowService) BuyProperty(
	ctx context.Context, caller string, id uint64, amount *uint64,
) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var sale *domain.Sale
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		var err error
		if sale, err = getSale(ctx, s.repoManager, id); err != nil {
			return nil, err
		}
		if err := sale.Buy(caller, amount, now); err != nil {
			return nil, err
		}
		if err := s.repoManager.Sales().UpsertSale(ctx, *sale); err != nil {
			return nil, err
		}
		return []ports.Transfer{{
			Asset:   sale.SettlementAsset,
			From:    caller,
			To:      domain.EscrowAccount,
			Amount:  sale.Price,
			Spender: domain.EscrowAccount,
		}}, nil
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewPropertyBought(*sale))
	log.WithFields(log.Fields{
		"asset": id,
		"buyer": caller,
	}).Info("property bought")
	return nil
}

func (s *escrowService) Execute(
	ctx context.Context, caller string, id uint64,
) (*SaleReceipt, error) {
	unlock, err := lockAsset(ctx, s.locker, s.repoManager, id)
	if err != nil {
		return nil, toError(err)
	}
	defer unlock()

	now := s.now()
	var (
		receipt *SaleReceipt
		events  []domain.Event
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		sale, err := getSale(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		if err := sale.CanExecute(caller, now); err != nil {
			return nil, err
		}
		asset, err := getAsset(ctx, s.repoManager, id)
		if err != nil {
			return nil, err
		}
		settings, err := getSettings(ctx, s.repoManager)
		if err != nil {
			return nil, err
		}

		slots := asset.LienSlots()
		liens := make([]*domain.Lien, 0, len(slots))
		fee := sale.Fee()
		owed := uint64(0)
		for _, slot := range slots {
			lien, err := getLien(ctx, s.repoManager, slot.LienID)
			if err != nil {
				return nil, err
			}
			if lien.Update(now) {
				events = append(events, domain.NewLienUpdated(*lien, now))
			}
			liens = append(liens, lien)
			owed += lien.Balance
			if owed < lien.Balance || owed > sale.Price-fee {
				return nil, errors.INSUFFICIENT_PROCEEDS.New(
					"asset %d sale price %d does not cover fee %d and liens",
					id, sale.Price, fee,
				).WithMetadata(errors.ProceedsMetadata{
					AssetId: id,
					Price:   sale.Price,
					Fee:     fee,
					Liens:   s.totalOwed(ctx, slots, now),
				})
			}
		}

		receipt = &SaleReceipt{Fee: fee}
		transfers := make([]ports.Transfer, 0, len(liens)+2)
		for i, lien := range liens {
			lienEvents, paid := payoff(lien, domain.EscrowAccount, lien.Balance, now)
			events = append(events, lienEvents...)
			if paid == 0 {
				continue
			}
			if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
				return nil, err
			}
			receipt.Payoffs = append(receipt.Payoffs, LienPayoff{
				Slot: slots[i].Slot, LienID: lien.ID, Amount: paid,
			})
			transfers = append(transfers, ports.Transfer{
				Asset:  sale.SettlementAsset,
				From:   domain.EscrowAccount,
				To:     lien.Provider,
				Amount: paid,
			})
		}
		receipt.Proceeds = sale.Price - fee - owed

		if err := sale.Execute(caller, now); err != nil {
			return nil, err
		}
		custody, err := transferCustody(
			ctx, s.repoManager, domain.EscrowAccount, asset,
			domain.EscrowAccount, sale.Buyer, now,
		)
		if err != nil {
			return nil, err
		}
		if err := s.repoManager.Assets().UpsertAsset(ctx, *asset); err != nil {
			return nil, err
		}
		if err := s.repoManager.Sales().UpsertSale(ctx, *sale); err != nil {
			return nil, err
		}
		receipt.Sale = *sale
		events = append(events, domain.NewSaleExecuted(*sale, owed, receipt.Proceeds), custody)

		transfers = append(transfers, nonZero(
			ports.Transfer{
				Asset:  sale.SettlementAsset,
				From:   domain.EscrowAccount,
				To:     settings.FeeCollector,
				Amount: fee,
			},
			ports.Transfer{
				Asset:  sale.SettlementAsset,
				From:   domain.EscrowAccount,
				To:     sale.Seller,
				Amount: receipt.Proceeds,
			},
		)...)
		return transfers, nil
	}); err != nil {
		return nil, err
	}

	publish(ctx, s.repoManager.Events(), events...)

	log.WithFields(log.Fields{
		"asset":    id,
		"buyer":    receipt.Sale.Buyer,
		"fee":      receipt.Fee,
		"proceeds": receipt.Proceeds,
	}).Info("executed sale")
	return receipt, nil
}

func (s *escrowService) RevertSeller(ctx context.Context, caller string, id uint64) error {
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var (
		sale    *domain.Sale
		custody domain.Event
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		var err error
		if sale, err = getSale(ctx, s.repoManager, id); err != nil {
			return nil, err
		}
		if err := sale.RevertSeller(caller, now); err != nil {
			return nil, err
		}
		if custody, err = s.returnToSeller(ctx, sale, now); err != nil {
			return nil, err
		}
		return nil, s.repoManager.Sales().DeleteSale(ctx, id)
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewSaleReverted(*sale), custody)
	log.WithField("asset", id).Info("seller reverted listing")
	return nil
}

func (s *escrowService) RevertBuyer(ctx context.Context, caller string, id uint64) error {
	unlock := s.locker.Lock(assetKey(id))
	defer unlock()

	now := s.now()
	var (
		sale    *domain.Sale
		custody domain.Event
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		var err error
		if sale, err = getSale(ctx, s.repoManager, id); err != nil {
			return nil, err
		}
		if err := sale.RevertBuyer(caller, now); err != nil {
			return nil, err
		}
		if custody, err = s.returnToSeller(ctx, sale, now); err != nil {
			return nil, err
		}
		if err := s.repoManager.Sales().UpsertSale(ctx, *sale); err != nil {
			return nil, err
		}
		return []ports.Transfer{{
			Asset:  sale.SettlementAsset,
			From:   domain.EscrowAccount,
			To:     sale.Buyer,
			Amount: sale.Price,
		}}, nil
	}); err != nil {
		return err
	}

	publish(ctx, s.repoManager.Events(), domain.NewSaleCanceled(*sale), custody)
	log.WithFields(log.Fields{
		"asset": id,
		"buyer": caller,
	}).Info("buyer reverted purchase")
	return nil
}

func (s *escrowService) GetSale(ctx context.Context, id uint64) (*domain.Sale, error) {
	sale, err := s.repoManager.Sales().GetSale(ctx, id)
	if err != nil {
		return nil, toError(err)
	}
	if sale == nil {
		return &domain.Sale{AssetID: id, State: domain.SaleStateNone}, nil
	}
	return sale, nil
}

func (s *escrowService) returnToSeller(
	ctx context.Context, sale *domain.Sale, now int64,
) (domain.Event, error) {
	asset, err := getAsset(ctx, s.repoManager, sale.AssetID)
	if err != nil {
		return nil, err
	}
	custody, err := transferCustody(
		ctx, s.repoManager, domain.EscrowAccount, asset, domain.EscrowAccount, sale.Seller, now,
	)
	if err != nil {
		return nil, err
	}
	return custody, s.repoManager.Assets().UpsertAsset(ctx, *asset)
}

// totalOwed sums the current balance of every lien in slots, saturating on overflow.
func (s *escrowService) totalOwed(
	ctx context.Context, slots []domain.LienSlot, now int64,
) uint64 {
	total := uint64(0)
	for _, slot := range slots {
		lien, err := s.repoManager.Liens().GetLien(ctx, slot.LienID)
		if err != nil || lien == nil {
			continue
		}
		balance := lien.BalanceAt(now)
		if total+balance < total {
			return ^uint64(0)
		}
		total += balance
	}
	return total
}

func (s *escrowService) now() int64 {
	return s.clock.Now().Unix()
}
