package inmemoryledger

import (
	"context"
	"sync"

	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/internal/infrastructure/ledger"
	"github.com/zyfty/zyftyd/pkg/errors"
)

type service struct {
	lock       sync.RWMutex
	balances   map[ledger.Account]uint64
	allowances map[ledger.Allowance]uint64
}

func NewLedger() ports.Ledger {
	return &service{
		balances:   make(map[ledger.Account]uint64),
		allowances: make(map[ledger.Allowance]uint64),
	}
}

func (s *service) BalanceOf(_ context.Context, asset, account string) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.balances[ledger.Account{Asset: asset, Name: account}], nil
}

func (s *service) Allowance(_ context.Context, asset, owner, spender string) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.allowances[ledger.Allowance{Asset: asset, Owner: owner, Spender: spender}], nil
}

func (s *service) Approve(
	_ context.Context, asset, owner, spender string, amount uint64,
) error {
	if asset == "" || owner == "" || spender == "" {
		return errors.INVALID_ARGUMENT.New("missing approval asset, owner or spender")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.allowances[ledger.Allowance{Asset: asset, Owner: owner, Spender: spender}] = amount
	return nil
}

func (s *service) Transfer(ctx context.Context, asset, from, to string, amount uint64) error {
	return s.Apply(ctx, []ports.Transfer{{Asset: asset, From: from, To: to, Amount: amount}})
}

func (s *service) TransferFrom(
	ctx context.Context, asset, spender, from, to string, amount uint64,
) error {
	return s.Apply(ctx, []ports.Transfer{
		{Asset: asset, From: from, To: to, Amount: amount, Spender: spender},
	})
}

func (s *service) Apply(_ context.Context, transfers []ports.Transfer) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	changes, err := ledger.Settle(committed{s}, transfers)
	if err != nil {
		return err
	}
	for k, v := range changes.Balances {
		s.balances[k] = v
	}
	for k, v := range changes.Allowances {
		s.allowances[k] = v
	}
	return nil
}

func (s *service) Deposit(_ context.Context, asset, account string, amount uint64) error {
	if asset == "" || account == "" {
		return errors.INVALID_ARGUMENT.New("missing deposit asset or account")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.balances[ledger.Account{Asset: asset, Name: account}] += amount
	return nil
}

func (s *service) Close() {}

// committed reads the current state for ledger.Settle, the caller holds the lock.
type committed struct {
	s *service
}

func (c committed) Balance(account ledger.Account) (uint64, error) {
	return c.s.balances[account], nil
}

func (c committed) Allowance(a ledger.Allowance) (uint64, error) {
	return c.s.allowances[a], nil
}
