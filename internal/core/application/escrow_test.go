package application_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/pkg/errors"
)

const (
	price  = uint64(200)
	window = int64(5)
)

// list mints an asset backed by liens of the given balances and lists it for sale.
func (e *testEnv) list(t *testing.T, lienBalances ...uint64) uint64 {
	t.Helper()
	primary := ""
	liens := make([]*domain.Lien, 0, len(lienBalances))
	for i, balance := range lienBalances {
		lien := e.newLien(t, balance)
		if i == 0 {
			primary = lien.ID
		}
		liens = append(liens, lien)
	}
	id := e.mint(t, primary)
	for _, lien := range liens[min(1, len(liens)):] {
		e.attach(t, id, lien)
	}
	require.NoError(t, e.escrow.SellProperty(t.Context(), owner, id, price, window))
	return id
}

func (e *testEnv) buy(t *testing.T, id uint64) {
	t.Helper()
	e.fund(t, buyer, price)
	e.approve(t, buyer, domain.EscrowAccount, price)
	require.NoError(t, e.escrow.BuyProperty(t.Context(), buyer, id, nil))
}

func (e *testEnv) requireSaleState(t *testing.T, id uint64, expected domain.SaleState) {
	t.Helper()
	sale, err := e.escrow.GetSale(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, expected, sale.State)
}

func TestEscrowSell(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := t.Context()
	id := env.mint(t, "")

	err := env.escrow.SellProperty(ctx, buyer, id, price, window)
	require.True(t, errors.UNAUTHORIZED.Is(err))
	err = env.escrow.SellProperty(ctx, owner, id, 0, window)
	require.True(t, errors.INVALID_ARGUMENT.Is(err))
	err = env.escrow.SellProperty(ctx, owner, id+1, price, window)
	require.True(t, errors.ASSET_NOT_FOUND.Is(err))
	env.requireSaleState(t, id, domain.SaleStateNone)
	env.requireOwner(t, id, owner)

	require.NoError(t, env.escrow.SellProperty(ctx, owner, id, price, window))
	env.requireSaleState(t, id, domain.SaleStateListed)
	env.requireOwner(t, id, domain.EscrowAccount)

	// custody moved to the escrow, the seller can neither relist nor manage the asset
	err = env.escrow.SellProperty(ctx, owner, id, price, window)
	require.True(t, errors.SALE_ALREADY_ACTIVE.Is(err), err.Error())
	err = env.escrow.SellProperty(ctx, buyer, id, price, window)
	require.True(t, errors.SALE_ALREADY_ACTIVE.Is(err), err.Error())
	err = env.registry.Destroy(ctx, owner, id)
	require.True(t, errors.UNAUTHORIZED.Is(err))

	events, err := env.registry.GetAssetEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 3)
	listed, ok := events[1].(domain.PropertyListed)
	if !ok {
		listed, ok = events[2].(domain.PropertyListed)
	}
	require.True(t, ok)
	require.Equal(t, price, listed.Price)
	require.Equal(t, owner, listed.Seller)
}

func TestEscrowBuy(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env := newTestEnv(t, 0)
		id := env.list(t)
		env.clock.Advance(time.Duration(window) * time.Second)

		env.buy(t, id)
		env.requireSaleState(t, id, domain.SaleStateBought)
		require.Equal(t, price, env.balance(t, domain.EscrowAccount))
		require.Zero(t, env.balance(t, buyer))

		sale, err := env.escrow.GetSale(t.Context(), id)
		require.NoError(t, err)
		require.Equal(t, buyer, sale.Buyer)
		require.Equal(t, sale.ListedAt+window, sale.BoughtAt)
	})

	t.Run("invalid", func(t *testing.T) {
		wrongAmount := price - 1
		tests := []struct {
			name    string
			buyer   string
			amount  *uint64
			elapsed time.Duration
			code    func(error) bool
		}{
			{"window closed", buyer, nil, 6 * time.Second, errors.WINDOW_CLOSED.Is},
			{"seller", owner, nil, 0, errors.UNAUTHORIZED.Is},
			{"amount mismatch", buyer, &wrongAmount, 0, errors.INVALID_ARGUMENT.Is},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newTestEnv(t, 0)
				id := env.list(t)
				env.fund(t, tt.buyer, price)
				env.approve(t, tt.buyer, domain.EscrowAccount, price)
				env.clock.Advance(tt.elapsed)

				err := env.escrow.BuyProperty(t.Context(), tt.buyer, id, tt.amount)
				require.Error(t, err)
				require.True(t, tt.code(err), err.Error())
				env.requireSaleState(t, id, domain.SaleStateListed)
				require.Equal(t, price, env.balance(t, tt.buyer))
			})
		}
	})

	t.Run("without deposit", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		id := env.list(t)

		err := env.escrow.BuyProperty(ctx, buyer, id, nil)
		require.True(t, errors.INSUFFICIENT_ALLOWANCE.Is(err))
		env.approve(t, buyer, domain.EscrowAccount, price)
		err = env.escrow.BuyProperty(ctx, buyer, id, nil)
		require.True(t, errors.INSUFFICIENT_FUNDS.Is(err))
		env.requireSaleState(t, id, domain.SaleStateListed)
	})

	t.Run("already bought", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		id := env.list(t)
		env.buy(t, id)

		err := env.escrow.BuyProperty(ctx, "carol", id, nil)
		require.True(t, errors.ALREADY_BOUGHT.Is(err))
		err = env.escrow.SellProperty(ctx, domain.EscrowAccount, id, price, window)
		require.True(t, errors.SALE_ALREADY_ACTIVE.Is(err))
	})

	t.Run("not listed", func(t *testing.T) {
		env := newTestEnv(t, 0)
		id := env.mint(t, "")
		err := env.escrow.BuyProperty(t.Context(), buyer, id, nil)
		require.True(t, errors.SALE_NOT_FOUND.Is(err))
	})
}

func TestEscrowExecute(t *testing.T) {
	t.Run("pays liens, fee and seller", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		id := env.list(t, 100, 50)
		env.buy(t, id)

		_, err := env.escrow.Execute(ctx, buyer, id)
		require.True(t, errors.UNAUTHORIZED.Is(err))

		receipt, err := env.escrow.Execute(ctx, owner, id)
		require.NoError(t, err)
		require.Equal(t, uint64(1), receipt.Fee)
		require.Equal(t, uint64(49), receipt.Proceeds)
		require.Len(t, receipt.Payoffs, 2)
		require.Equal(t, uint64(100), receipt.Payoffs[0].Amount)
		require.Equal(t, 1, receipt.Payoffs[1].Slot)
		require.Equal(t, domain.SaleStateExecuted, receipt.Sale.State)

		require.Equal(t, uint64(150), env.balance(t, provider))
		require.Equal(t, uint64(1), env.balance(t, collector))
		require.Equal(t, uint64(49), env.balance(t, owner))
		require.Zero(t, env.balance(t, domain.EscrowAccount))
		env.requireOwner(t, id, buyer)
		env.requireSaleState(t, id, domain.SaleStateExecuted)

		// paid liens stay attached with nothing left to pay
		liens, err := env.registry.ListLiens(ctx, id)
		require.NoError(t, err)
		require.Len(t, liens, 2)
		for _, lien := range liens {
			require.Zero(t, lien.Balance)
		}

		_, err = env.escrow.Execute(ctx, owner, id)
		require.True(t, errors.INVALID_STATE.Is(err))
	})

	t.Run("liens up to the price net of fee", func(t *testing.T) {
		env := newTestEnv(t, 0)
		id := env.list(t, 199)
		env.buy(t, id)

		receipt, err := env.escrow.Execute(t.Context(), owner, id)
		require.NoError(t, err)
		require.Zero(t, receipt.Proceeds)
		require.Equal(t, uint64(199), env.balance(t, provider))
		require.Equal(t, uint64(1), env.balance(t, collector))
		require.Zero(t, env.balance(t, owner))
	})

	t.Run("insufficient proceeds", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		id := env.list(t, 150, 50)
		env.buy(t, id)

		_, err := env.escrow.Execute(ctx, owner, id)
		require.Error(t, err)
		require.True(t, errors.INSUFFICIENT_PROCEEDS.Is(err), err.Error())

		require.Equal(t, price, env.balance(t, domain.EscrowAccount))
		require.Zero(t, env.balance(t, provider))
		require.Zero(t, env.balance(t, collector))
		env.requireSaleState(t, id, domain.SaleStateBought)
		env.requireOwner(t, id, domain.EscrowAccount)

		liens, err := env.registry.ListLiens(ctx, id)
		require.NoError(t, err)
		require.Equal(t, uint64(150), liens[0].Balance)
	})

	t.Run("accrued interest counts against proceeds", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		lien, err := env.liens.CreateAccruingLien(ctx, provider, settlement, 150, 10, 1)
		require.NoError(t, err)
		id := env.mint(t, lien.ID)
		require.NoError(t, env.escrow.SellProperty(ctx, owner, id, price, window))
		env.buy(t, id)

		env.clock.Advance(4 * time.Second)
		receipt, err := env.escrow.Execute(ctx, owner, id)
		require.NoError(t, err)
		require.Equal(t, uint64(190), receipt.Payoffs[0].Amount)
		require.Equal(t, uint64(9), receipt.Proceeds)

		env2 := newTestEnv(t, 0)
		lien, err = env2.liens.CreateAccruingLien(ctx, provider, settlement, 150, 10, 1)
		require.NoError(t, err)
		id = env2.mint(t, lien.ID)
		require.NoError(t, env2.escrow.SellProperty(ctx, owner, id, price, window))
		env2.buy(t, id)

		env2.clock.Advance(5 * time.Second)
		_, err = env2.escrow.Execute(ctx, owner, id)
		require.True(t, errors.INSUFFICIENT_PROCEEDS.Is(err))
	})

	t.Run("execute window", func(t *testing.T) {
		env := newTestEnv(t, 0)
		id := env.list(t)
		env.buy(t, id)
		env.clock.Advance(time.Duration(window+1) * time.Second)

		_, err := env.escrow.Execute(t.Context(), owner, id)
		require.True(t, errors.WINDOW_CLOSED.Is(err))
	})
}

func TestEscrowRevertSeller(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := t.Context()
	id := env.list(t)

	env.clock.Advance(time.Duration(window) * time.Second)
	err := env.escrow.RevertSeller(ctx, owner, id)
	require.True(t, errors.WINDOW_STILL_OPEN.Is(err))

	env.clock.Advance(time.Second)
	err = env.escrow.RevertSeller(ctx, buyer, id)
	require.True(t, errors.UNAUTHORIZED.Is(err))
	require.NoError(t, env.escrow.RevertSeller(ctx, owner, id))

	env.requireSaleState(t, id, domain.SaleStateNone)
	env.requireOwner(t, id, owner)

	_, err = env.escrow.Execute(ctx, owner, id)
	require.True(t, errors.SALE_NOT_FOUND.Is(err))
	err = env.escrow.RevertSeller(ctx, owner, id)
	require.True(t, errors.SALE_NOT_FOUND.Is(err))

	// the asset can be listed again
	require.NoError(t, env.escrow.SellProperty(ctx, owner, id, price, window))
	env.requireSaleState(t, id, domain.SaleStateListed)
}

func TestEscrowRevertBuyer(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := t.Context()
	id := env.list(t)
	env.buy(t, id)

	err := env.escrow.RevertSeller(ctx, owner, id)
	require.True(t, errors.INVALID_STATE.Is(err))

	env.clock.Advance(time.Duration(window) * time.Second)
	err = env.escrow.RevertBuyer(ctx, buyer, id)
	require.True(t, errors.WINDOW_STILL_OPEN.Is(err))

	env.clock.Advance(time.Second)
	err = env.escrow.RevertBuyer(ctx, owner, id)
	require.True(t, errors.UNAUTHORIZED.Is(err))
	require.NoError(t, env.escrow.RevertBuyer(ctx, buyer, id))

	require.Equal(t, price, env.balance(t, buyer))
	require.Zero(t, env.balance(t, domain.EscrowAccount))
	env.requireSaleState(t, id, domain.SaleStateCanceled)
	env.requireOwner(t, id, owner)

	_, err = env.escrow.Execute(ctx, owner, id)
	require.True(t, errors.INVALID_STATE.Is(err))
	err = env.escrow.RevertBuyer(ctx, buyer, id)
	require.True(t, errors.INVALID_STATE.Is(err))

	events, err := env.registry.GetAssetEvents(ctx, id)
	require.NoError(t, err)
	last := events[len(events)-1]
	require.Contains(t, []domain.EventType{
		domain.EventTypeSaleCanceled, domain.EventTypeAssetTransferred,
	}, last.GetType())

	// a canceled sale does not block a new listing
	require.NoError(t, env.escrow.SellProperty(ctx, owner, id, price, window))
	env.requireSaleState(t, id, domain.SaleStateListed)
}

func TestEscrowConcurrency(t *testing.T) {
	t.Run("one buyer wins a listing", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		id := env.list(t, 50)

		buyers := make([]string, 0, 10)
		for i := 0; i < 10; i++ {
			account := fmt.Sprintf("buyer-%d", i)
			env.fund(t, account, price)
			env.approve(t, account, domain.EscrowAccount, price)
			buyers = append(buyers, account)
		}

		errs := make([]error, len(buyers))
		wg := &sync.WaitGroup{}
		for i, account := range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = env.escrow.BuyProperty(ctx, account, id, nil)
			}()
		}
		wg.Wait()

		winner := ""
		for i, err := range errs {
			if err == nil {
				require.Empty(t, winner, "more than one buyer succeeded")
				winner = buyers[i]
				continue
			}
			require.True(t, errors.ALREADY_BOUGHT.Is(err), err.Error())
		}
		require.NotEmpty(t, winner)

		sale, err := env.escrow.GetSale(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.SaleStateBought, sale.State)
		require.Equal(t, winner, sale.Buyer)
		require.Equal(t, price, env.balance(t, domain.EscrowAccount))
		for _, account := range buyers {
			if account == winner {
				require.Zero(t, env.balance(t, account))
				continue
			}
			require.Equal(t, price, env.balance(t, account))
			allowance, err := env.accounts.Allowance(ctx, settlement, account, domain.EscrowAccount)
			require.NoError(t, err)
			require.Equal(t, price, allowance)
		}
	})

	t.Run("execute and buyer revert at the deadline", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			env := newTestEnv(t, 0)
			ctx := t.Context()
			id := env.list(t, 50)
			env.buy(t, id)
			env.clock.Advance(time.Duration(window) * time.Second)

			var executeErr, revertErr error
			wg := &sync.WaitGroup{}
			wg.Add(3)
			go func() {
				defer wg.Done()
				_, executeErr = env.escrow.Execute(ctx, owner, id)
			}()
			go func() {
				defer wg.Done()
				revertErr = env.escrow.RevertBuyer(ctx, buyer, id)
			}()
			go func() {
				defer wg.Done()
				env.clock.Advance(time.Second)
			}()
			wg.Wait()

			require.False(
				t, executeErr == nil && revertErr == nil, "sale both executed and reverted",
			)
			sale, err := env.escrow.GetSale(ctx, id)
			require.NoError(t, err)
			asset, err := env.registry.GetAsset(ctx, id)
			require.NoError(t, err)

			switch {
			case executeErr == nil:
				require.Equal(t, domain.SaleStateExecuted, sale.State)
				require.Equal(t, buyer, asset.Owner)
				require.Equal(t, uint64(50), env.balance(t, provider))
				require.Equal(t, uint64(149), env.balance(t, owner))
				require.Zero(t, env.balance(t, buyer))
				require.Zero(t, env.balance(t, domain.EscrowAccount))
			case revertErr == nil:
				require.Equal(t, domain.SaleStateCanceled, sale.State)
				require.Equal(t, owner, asset.Owner)
				require.Equal(t, price, env.balance(t, buyer))
				require.Zero(t, env.balance(t, provider))
				require.Zero(t, env.balance(t, owner))
				require.Zero(t, env.balance(t, domain.EscrowAccount))
			default:
				// both read the clock on the wrong side of the deadline, nothing moved
				require.Equal(t, domain.SaleStateBought, sale.State)
				require.Equal(t, domain.EscrowAccount, asset.Owner)
				require.Equal(t, price, env.balance(t, domain.EscrowAccount))
			}
		}
	})
}
