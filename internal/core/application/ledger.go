package application

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/pkg/errors"
)

// reservedPrefix marks the pool accounts the service moves funds from on its own.
const reservedPrefix = "zyfty:"

type ledgerService struct {
	repoManager ports.RepoManager
	ledger      ports.Ledger
}

func NewLedgerService(repoManager ports.RepoManager, ledger ports.Ledger) LedgerService {
	return &ledgerService{repoManager, ledger}
}

func (s *ledgerService) BalanceOf(ctx context.Context, asset, account string) (uint64, error) {
	balance, err := s.ledger.BalanceOf(ctx, asset, account)
	if err != nil {
		return 0, toError(err)
	}
	return balance, nil
}

func (s *ledgerService) Allowance(
	ctx context.Context, asset, owner, spender string,
) (uint64, error) {
	allowance, err := s.ledger.Allowance(ctx, asset, owner, spender)
	if err != nil {
		return 0, toError(err)
	}
	return allowance, nil
}

func (s *ledgerService) Approve(
	ctx context.Context, caller, asset, spender string, amount uint64,
) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if IsReservedAccount(caller) {
		return errors.UNAUTHORIZED.New("account %s is reserved", caller).
			WithMetadata(errors.AccountMetadata{Account: caller})
	}
	return toError(s.ledger.Approve(ctx, asset, caller, spender, amount))
}

func (s *ledgerService) Deposit(
	ctx context.Context, caller, asset, account string, amount uint64,
) error {
	settings, err := getSettings(ctx, s.repoManager)
	if err != nil {
		return toError(err)
	}
	if err := settings.RequireAdmin(caller); err != nil {
		return err
	}
	if err := s.ledger.Deposit(ctx, asset, account, amount); err != nil {
		return toError(err)
	}
	log.WithFields(log.Fields{
		"asset":   asset,
		"account": account,
		"amount":  amount,
	}).Info("deposited funds")
	return nil
}

// IsReservedAccount reports whether account is one of the service pool or lien accounts, which
// no external caller may act as.
func IsReservedAccount(account string) bool {
	return strings.HasPrefix(account, reservedPrefix) ||
		strings.HasPrefix(account, domain.LienAccount(""))
}
