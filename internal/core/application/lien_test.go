package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/pkg/errors"
)

func TestLienService(t *testing.T) {
	t.Run("pay never overdrafts", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		lien := env.newLien(t, 10)
		env.fund(t, provider, 50)
		env.fund(t, owner, 100)
		env.approve(t, owner, lien.Account(), 100)

		for _, expected := range []struct {
			paid     uint64
			provider uint64
			balance  uint64
		}{
			{5, 55, 5},
			{5, 60, 0},
			{0, 60, 0},
		} {
			paid, err := env.liens.Pay(ctx, owner, lien.ID, 5)
			require.NoError(t, err)
			require.Equal(t, expected.paid, paid)
			require.Equal(t, expected.provider, env.balance(t, provider))

			balance, err := env.liens.Balance(ctx, lien.ID)
			require.NoError(t, err)
			require.Equal(t, expected.balance, balance)
		}
		require.Equal(t, uint64(90), env.balance(t, owner))

		events, err := env.liens.GetLienEvents(ctx, lien.ID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		require.Equal(t, domain.EventTypeLienCreated, events[0].GetType())
		require.Equal(t, domain.EventTypeLienPaid, events[2].GetType())
	})

	t.Run("failed payment leaves the balance unchanged", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		lien := env.newLien(t, 10)
		env.fund(t, owner, 3)

		_, err := env.liens.Pay(ctx, owner, lien.ID, 5)
		require.True(t, errors.INSUFFICIENT_ALLOWANCE.Is(err), err.Error())

		env.approve(t, owner, lien.Account(), 5)
		_, err = env.liens.Pay(ctx, owner, lien.ID, 5)
		require.True(t, errors.INSUFFICIENT_FUNDS.Is(err), err.Error())

		info, err := env.liens.GetLien(ctx, lien.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(10), info.Balance)
		require.Equal(t, uint64(3), env.balance(t, owner))
	})

	t.Run("accrual", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		lien, err := env.liens.CreateAccruingLien(ctx, provider, settlement, 100, 10, 60)
		require.NoError(t, err)
		createdAt := lien.Accrual.LastUpdate

		env.clock.Advance(150 * time.Second)
		info, err := env.liens.GetLien(ctx, lien.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(100), info.Balance)
		require.Equal(t, uint64(120), info.CurrentBalance)

		updated, err := env.liens.Update(ctx, lien.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(120), updated.Balance)
		require.Equal(t, createdAt+120, updated.Accrual.LastUpdate)

		again, err := env.liens.Update(ctx, lien.ID)
		require.NoError(t, err)
		require.Equal(t, *updated, *again)

		// the partial period carried over completes after 30 more seconds
		env.clock.Advance(30 * time.Second)
		balance, err := env.liens.Balance(ctx, lien.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(130), balance)
	})

	t.Run("static lien update is a no-op", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()
		lien := env.newLien(t, 42)

		env.clock.Advance(time.Hour)
		for i := 0; i < 2; i++ {
			updated, err := env.liens.Update(ctx, lien.ID)
			require.NoError(t, err)
			require.Equal(t, uint64(42), updated.Balance)
			require.Equal(t, lien.UpdatedAt, updated.UpdatedAt)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		env := newTestEnv(t, 0)
		ctx := t.Context()

		_, err := env.liens.GetLien(ctx, "missing")
		require.True(t, errors.LIEN_NOT_FOUND.Is(err))
		_, err = env.liens.Pay(ctx, owner, "missing", 1)
		require.True(t, errors.LIEN_NOT_FOUND.Is(err))
		_, err = env.liens.Pay(ctx, "", "missing", 1)
		require.True(t, errors.INVALID_ARGUMENT.Is(err))
		_, err = env.liens.CreateLien(ctx, "", settlement, 1)
		require.True(t, errors.INVALID_ARGUMENT.Is(err))
		_, err = env.liens.CreateAccruingLien(ctx, provider, settlement, 1, 1, 0)
		require.True(t, errors.INVALID_ARGUMENT.Is(err))
	})
}
