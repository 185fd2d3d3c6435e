package application

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/pkg/errors"
)

type lienService struct {
	repoManager ports.RepoManager
	ledger      ports.Ledger
	clock       ports.Clock
	locker      *Locker
}

func NewLienService(
	repoManager ports.RepoManager, ledger ports.Ledger, clock ports.Clock, locker *Locker,
) LienService {
	return &lienService{
		repoManager: repoManager,
		ledger:      ledger,
		clock:       clock,
		locker:      locker,
	}
}

func (s *lienService) CreateLien(
	ctx context.Context, provider, settlementAsset string, balance uint64,
) (*domain.Lien, error) {
	lien, err := domain.NewLien(provider, settlementAsset, balance, s.now())
	if err != nil {
		return nil, err
	}
	return s.create(ctx, lien)
}

func (s *lienService) CreateAccruingLien(
	ctx context.Context, provider, settlementAsset string,
	balance, perPeriod uint64, period int64,
) (*domain.Lien, error) {
	lien, err := domain.NewAccruingLien(
		provider, settlementAsset, balance, perPeriod, period, s.now(),
	)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, lien)
}

func (s *lienService) create(ctx context.Context, lien *domain.Lien) (*domain.Lien, error) {
	if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
		return nil, toError(err)
	}
	publish(ctx, s.repoManager.Events(), domain.NewLienCreated(*lien))

	log.WithFields(log.Fields{
		"lien":     lien.ID,
		"provider": lien.Provider,
		"balance":  lien.Balance,
	}).Debug("created lien")
	return lien, nil
}

func (s *lienService) GetLien(ctx context.Context, id string) (*LienInfo, error) {
	lien, err := getLien(ctx, s.repoManager, id)
	if err != nil {
		return nil, toError(err)
	}
	return &LienInfo{Lien: *lien, CurrentBalance: lien.BalanceAt(s.now())}, nil
}

func (s *lienService) Balance(ctx context.Context, id string) (uint64, error) {
	info, err := s.GetLien(ctx, id)
	if err != nil {
		return 0, err
	}
	return info.CurrentBalance, nil
}

func (s *lienService) Update(ctx context.Context, id string) (*domain.Lien, error) {
	unlock := s.locker.Lock(lienKey(id))
	defer unlock()

	lien, err := getLien(ctx, s.repoManager, id)
	if err != nil {
		return nil, toError(err)
	}
	now := s.now()
	if !lien.Update(now) {
		return lien, nil
	}
	if err := s.repoManager.Liens().UpsertLien(ctx, *lien); err != nil {
		return nil, toError(err)
	}
	publish(ctx, s.repoManager.Events(), domain.NewLienUpdated(*lien, now))
	return lien, nil
}

func (s *lienService) Pay(ctx context.Context, caller, id string, amount uint64) (uint64, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}

	unlock := s.locker.Lock(lienKey(id))
	defer unlock()

	now := s.now()
	var (
		events []domain.Event
		paid   uint64
	)
	if err := settle(ctx, s.repoManager, s.ledger, func(ctx context.Context) (
		[]ports.Transfer, error,
	) {
		lien, err := getLien(ctx, s.repoManager, id)
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
			Spender: lien.Account(),
		}), nil
	}); err != nil {
		return 0, err
	}

	publish(ctx, s.repoManager.Events(), events...)
	return paid, nil
}

func (s *lienService) GetLienEvents(ctx context.Context, id string) ([]domain.Event, error) {
	if _, err := getLien(ctx, s.repoManager, id); err != nil {
		return nil, toError(err)
	}
	events, err := s.repoManager.Events().Load(ctx, domain.LienTopic, id)
	if err != nil {
		return nil, toError(err)
	}
	return events, nil
}

func (s *lienService) now() int64 {
	return s.clock.Now().Unix()
}

func requireCaller(caller string) error {
	if caller == "" {
		return errors.INVALID_ARGUMENT.New("missing caller account")
	}
	return nil
}

// nonZero drops transfers that would move nothing.
func nonZero(transfers ...ports.Transfer) []ports.Transfer {
	out := make([]ports.Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Amount > 0 {
			out = append(out, t)
		}
	}
	return out
}
