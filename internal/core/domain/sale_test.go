package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/pkg/errors"
)

const (
	seller = "alice"
	buyer  = "bob"
)

func newTestSale(t *testing.T) *domain.Sale {
	sale, err := domain.NewSale(1, seller, settlement, 200, 5, 1000)
	require.NoError(t, err)
	return sale
}

func TestSale(t *testing.T) {
	t.Run("fee", func(t *testing.T) {
		sale := newTestSale(t)
		require.Equal(t, uint64(1), sale.Fee())
		sale.Price = 199
		require.Zero(t, sale.Fee())
		sale.Price = 100000
		require.Equal(t, uint64(500), sale.Fee())
	})

	t.Run("buy", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			sale := newTestSale(t)
			amount := uint64(200)
			require.NoError(t, sale.Buy(buyer, &amount, 1005))
			require.Equal(t, domain.SaleStateBought, sale.State)
			require.Equal(t, int64(1005), sale.BoughtAt)
			require.Equal(t, int64(1010), sale.ExecuteDeadline())
		})

		t.Run("invalid", func(t *testing.T) {
			wrongAmount := uint64(199)
			tests := []struct {
				name   string
				buyer  string
				amount *uint64
				now    int64
				code   func(error) bool
			}{
				{"window closed", buyer, nil, 1006, errors.WINDOW_CLOSED.Is},
				{"seller", seller, nil, 1001, errors.UNAUTHORIZED.Is},
				{"amount mismatch", buyer, &wrongAmount, 1001, errors.INVALID_ARGUMENT.Is},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					sale := newTestSale(t)
					err := sale.Buy(tt.buyer, tt.amount, tt.now)
					require.Error(t, err)
					require.True(t, tt.code(err), err.Error())
					require.Equal(t, domain.SaleStateListed, sale.State)
				})
			}
		})

		t.Run("already bought", func(t *testing.T) {
			sale := newTestSale(t)
			require.NoError(t, sale.Buy(buyer, nil, 1001))
			err := sale.Buy("carol", nil, 1002)
			require.True(t, errors.ALREADY_BOUGHT.Is(err))
			require.Equal(t, buyer, sale.Buyer)
		})
	})

	t.Run("execute", func(t *testing.T) {
		sale := newTestSale(t)
		err := sale.Execute(seller, 1001)
		require.True(t, errors.INVALID_STATE.Is(err))

		require.NoError(t, sale.Buy(buyer, nil, 1002))
		err = sale.Execute(buyer, 1003)
		require.True(t, errors.UNAUTHORIZED.Is(err))
		err = sale.Execute(seller, 1008)
		require.True(t, errors.WINDOW_CLOSED.Is(err))

		require.NoError(t, sale.Execute(seller, 1007))
		require.Equal(t, domain.SaleStateExecuted, sale.State)

		err = sale.RevertBuyer(buyer, 2000)
		require.True(t, errors.INVALID_STATE.Is(err))
	})

	t.Run("revert seller", func(t *testing.T) {
		sale := newTestSale(t)
		err := sale.RevertSeller(seller, 1005)
		require.True(t, errors.WINDOW_STILL_OPEN.Is(err))
		err = sale.RevertSeller(buyer, 1006)
		require.True(t, errors.UNAUTHORIZED.Is(err))

		require.NoError(t, sale.RevertSeller(seller, 1006))
		require.Equal(t, domain.SaleStateNone, sale.State)

		bought := newTestSale(t)
		require.NoError(t, bought.Buy(buyer, nil, 1001))
		err = bought.RevertSeller(seller, 2000)
		require.True(t, errors.INVALID_STATE.Is(err))
	})

	t.Run("revert buyer", func(t *testing.T) {
		sale := newTestSale(t)
		err := sale.RevertBuyer(buyer, 2000)
		require.True(t, errors.UNAUTHORIZED.Is(err))

		require.NoError(t, sale.Buy(buyer, nil, 1001))
		err = sale.RevertBuyer(buyer, 1006)
		require.True(t, errors.WINDOW_STILL_OPEN.Is(err))
		err = sale.RevertBuyer(seller, 1007)
		require.True(t, errors.UNAUTHORIZED.Is(err))

		require.NoError(t, sale.RevertBuyer(buyer, 1007))
		require.Equal(t, domain.SaleStateCanceled, sale.State)
	})
}

func TestSettings(t *testing.T) {
	settings, err := domain.NewSettings("admin", domain.EscrowAccount, "collector", 50, 0)
	require.NoError(t, err)

	require.Equal(t, uint64(5), settings.MintFee(1000))
	require.Zero(t, settings.MintFee(199))

	err = settings.RequireEscrowAuthority(seller)
	require.True(t, errors.TRANSFER_NOT_PERMITTED.Is(err))
	require.NoError(t, settings.RequireEscrowAuthority(domain.EscrowAccount))

	err = settings.UpdateEscrow(seller, seller, 1)
	require.True(t, errors.UNAUTHORIZED.Is(err))
	require.NoError(t, settings.UpdateEscrow("admin", "gate", 1))
	require.Equal(t, "gate", settings.EscrowAuthority)

	_, err = domain.NewSettings("admin", "gate", "collector", 10001, 0)
	require.True(t, errors.INVALID_ARGUMENT.Is(err))
}
