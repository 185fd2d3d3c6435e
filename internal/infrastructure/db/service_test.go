package db_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/internal/infrastructure/db"
)

const (
	provider   = "lender"
	owner      = "alice"
	settlement = "usdz"
)

func TestService(t *testing.T) {
	tests := []struct {
		name   string
		config func(t *testing.T) db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: func(t *testing.T) db.ServiceConfig {
				return db.ServiceConfig{
					EventStoreType:   "badger",
					DataStoreType:    "badger",
					EventStoreConfig: []interface{}{"", nil},
					DataStoreConfig:  []interface{}{"", nil},
				}
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: func(t *testing.T) db.ServiceConfig {
				return db.ServiceConfig{
					EventStoreType:   "badger",
					DataStoreType:    "sqlite",
					EventStoreConfig: []interface{}{"", nil},
					DataStoreConfig:  []interface{}{t.TempDir()},
				}
			},
		},
		{
			name: "repo_manager_with_postgres_stores",
			config: func(t *testing.T) db.ServiceConfig {
				dsn := os.Getenv("ZYFTYD_TEST_PG_DSN")
				if dsn == "" {
					t.Skip("ZYFTYD_TEST_PG_DSN not set")
				}
				return db.ServiceConfig{
					EventStoreType:   "postgres",
					DataStoreType:    "postgres",
					EventStoreConfig: []interface{}{dsn, true},
					DataStoreConfig:  []interface{}{dsn, true},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config(t))
			require.NoError(t, err)
			require.NotNil(t, svc)
			defer svc.Close()

			testEventRepository(t, svc)
			testAssetRepository(t, svc)
			testLienRepository(t, svc)
			testSaleRepository(t, svc)
			testSettingsRepository(t, svc)
			testRunInTx(t, svc)
		})
	}
}

func TestServiceConfig(t *testing.T) {
	_, err := db.NewService(db.ServiceConfig{
		EventStoreType:   "sqlite",
		DataStoreType:    "badger",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.Error(t, err)

	_, err = db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "mysql",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.Error(t, err)

	_, err = db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "sqlite",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{42},
	})
	require.Error(t, err)
}

func testEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		ctx := context.Background()
		lien, err := domain.NewLien(provider, settlement, 100, 10)
		require.NoError(t, err)

		received := make(chan []domain.Event, 1)
		svc.Events().RegisterEventsHandler(domain.LienTopic, func(events []domain.Event) {
			received <- events
		})
		defer svc.Events().ClearRegisteredHandlers(domain.LienTopic)

		events, err := svc.Events().Load(ctx, domain.LienTopic, lien.ID)
		require.NoError(t, err)
		require.Empty(t, events)

		created := domain.NewLienCreated(*lien)
		lien.Pay(40, 20)
		paid := domain.NewLienPaid(*lien, owner, 40, 20)
		err = svc.Events().Save(ctx, domain.LienTopic, lien.ID, []domain.Event{created, paid})
		require.NoError(t, err)

		select {
		case events := <-received:
			require.Equal(t, []domain.Event{created, paid}, events)
		case <-time.After(5 * time.Second):
			t.Fatal("events handler not called")
		}

		events, err = svc.Events().Load(ctx, domain.LienTopic, lien.ID)
		require.NoError(t, err)
		require.Equal(t, []domain.Event{created, paid}, events)
	})
}

func testAssetRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_asset_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Assets()
		holder := fmt.Sprintf("%s-%d", owner, time.Now().UnixNano())

		first, err := repo.NextAssetID(ctx)
		require.NoError(t, err)
		second, err := repo.NextAssetID(ctx)
		require.NoError(t, err)
		require.Equal(t, first+1, second)

		asset, err := repo.GetAsset(ctx, first)
		require.NoError(t, err)
		require.Nil(t, asset)

		asset, err = domain.NewAsset(first, holder, "ipfs://house", settlement, 1000, 10)
		require.NoError(t, err)
		asset.Liens[0] = "lien-a"
		asset.Liens[2] = "lien-c"
		asset.Reserve = 30
		require.NoError(t, repo.UpsertAsset(ctx, *asset))

		got, err := repo.GetAsset(ctx, first)
		require.NoError(t, err)
		require.Equal(t, asset, got)

		require.NoError(t, asset.ProposeLien(holder, "lien-d", 11))
		require.NoError(t, repo.UpsertAsset(ctx, *asset))
		got, err = repo.GetAsset(ctx, first)
		require.NoError(t, err)
		require.NotNil(t, got.Proposal)
		require.Equal(t, domain.LienProposal{LienID: "lien-d", ProposedAt: 11}, *got.Proposal)

		other, err := domain.NewAsset(second, holder, "ipfs://flat", settlement, 500, 12)
		require.NoError(t, err)
		require.NoError(t, repo.UpsertAsset(ctx, *other))

		owned, err := repo.GetAssetsByOwner(ctx, holder)
		require.NoError(t, err)
		require.Len(t, owned, 2)
		require.Equal(t, first, owned[0].ID)
		require.Equal(t, second, owned[1].ID)

		require.NoError(t, repo.DeleteAsset(ctx, second))
		got, err = repo.GetAsset(ctx, second)
		require.NoError(t, err)
		require.Nil(t, got)
		require.NoError(t, repo.DeleteAsset(ctx, second))
	})
}

func testLienRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_lien_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Liens()
		lenderName := fmt.Sprintf("%s-%d", provider, time.Now().UnixNano())

		plain, err := domain.NewLien(lenderName, settlement, 100, 10)
		require.NoError(t, err)
		accruing, err := domain.NewAccruingLien(lenderName, settlement, 50, 2, 60, 11)
		require.NoError(t, err)

		require.NoError(t, repo.UpsertLien(ctx, *plain))
		require.NoError(t, repo.UpsertLien(ctx, *accruing))

		got, err := repo.GetLien(ctx, accruing.ID)
		require.NoError(t, err)
		require.Equal(t, accruing, got)

		require.True(t, accruing.Update(131))
		require.NoError(t, accruing.Attach(7, 131))
		require.NoError(t, repo.UpsertLien(ctx, *accruing))
		got, err = repo.GetLien(ctx, accruing.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(54), got.Balance)
		require.Equal(t, int64(131), got.Accrual.LastUpdate)
		require.Equal(t, uint64(7), got.AssetID)

		liens, err := repo.GetLiens(ctx, []string{plain.ID, "missing", accruing.ID})
		require.NoError(t, err)
		require.Len(t, liens, 2)
		require.Equal(t, plain.ID, liens[0].ID)
		require.Nil(t, liens[0].Accrual)

		liens, err = repo.GetLiensByProvider(ctx, lenderName)
		require.NoError(t, err)
		require.Len(t, liens, 2)

		got, err = repo.GetLien(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func testSaleRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_sale_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Sales()
		assetID := uint64(time.Now().UnixNano() % 1_000_000_000)

		got, err := repo.GetSale(ctx, assetID)
		require.NoError(t, err)
		require.Nil(t, got)

		sale, err := domain.NewSale(assetID, owner, settlement, 200, 5, 1000)
		require.NoError(t, err)
		require.NoError(t, repo.UpsertSale(ctx, *sale))

		got, err = repo.GetSale(ctx, assetID)
		require.NoError(t, err)
		require.Equal(t, sale, got)

		require.NoError(t, sale.Buy("bob", nil, 1001))
		require.NoError(t, repo.UpsertSale(ctx, *sale))

		bought, err := repo.GetSalesByState(ctx, domain.SaleStateBought)
		require.NoError(t, err)
		require.Contains(t, bought, *sale)

		require.NoError(t, repo.DeleteSale(ctx, assetID))
		got, err = repo.GetSale(ctx, assetID)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func testSettingsRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_settings_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Settings()
		require.NoError(t, repo.Clear(ctx))

		settings, err := repo.Get(ctx)
		require.NoError(t, err)
		require.Nil(t, settings)

		settings, err = domain.NewSettings("admin", domain.EscrowAccount, "fees", 25, 10)
		require.NoError(t, err)
		require.NoError(t, repo.Upsert(ctx, *settings))

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, settings, got)

		require.NoError(t, settings.UpdateEscrow("admin", "gate", 11))
		require.NoError(t, repo.Upsert(ctx, *settings))
		got, err = repo.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "gate", got.EscrowAuthority)

		require.NoError(t, repo.Clear(ctx))
		got, err = repo.Get(ctx)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func testRunInTx(t *testing.T, svc ports.RepoManager) {
	t.Run("test_run_in_tx", func(t *testing.T) {
		ctx := context.Background()

		var rolledBack uint64
		err := svc.RunInTx(ctx, func(ctx context.Context) error {
			id, err := svc.Assets().NextAssetID(ctx)
			if err != nil {
				return err
			}
			rolledBack = id
			asset, err := domain.NewAsset(id, owner, "", settlement, 1, 1)
			if err != nil {
				return err
			}
			if err := svc.Assets().UpsertAsset(ctx, *asset); err != nil {
				return err
			}
			return fmt.Errorf("abort")
		})
		require.EqualError(t, err, "abort")

		asset, err := svc.Assets().GetAsset(ctx, rolledBack)
		require.NoError(t, err)
		require.Nil(t, asset)

		var committed uint64
		err = svc.RunInTx(ctx, func(ctx context.Context) error {
			id, err := svc.Assets().NextAssetID(ctx)
			if err != nil {
				return err
			}
			committed = id
			lien, err := domain.NewLien(provider, settlement, 10, 1)
			if err != nil {
				return err
			}
			asset, err := domain.NewAsset(id, owner, "", settlement, 1, 1)
			if err != nil {
				return err
			}
			if err := asset.SetPrimaryLien(lien); err != nil {
				return err
			}
			if err := lien.Attach(id, 1); err != nil {
				return err
			}
			if err := svc.Liens().UpsertLien(ctx, *lien); err != nil {
				return err
			}
			return svc.Assets().UpsertAsset(ctx, *asset)
		})
		require.NoError(t, err)
		// the counter increment is rolled back with the rest of the transaction
		require.Equal(t, rolledBack, committed)

		asset, err = svc.Assets().GetAsset(ctx, committed)
		require.NoError(t, err)
		require.NotNil(t, asset)
		lien, err := svc.Liens().GetLien(ctx, asset.Liens[0])
		require.NoError(t, err)
		require.Equal(t, committed, lien.AssetID)
	})
}
