package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zyfty/zyftyd/internal/core/application"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/internal/infrastructure/clock"
	"github.com/zyfty/zyftyd/internal/infrastructure/db"
	inmemoryledger "github.com/zyfty/zyftyd/internal/infrastructure/ledger/inmemory"
)

const (
	admin      = "zyfty-admin"
	collector  = "fee-collector"
	provider   = "lender"
	owner      = "alice"
	buyer      = "bob"
	settlement = "usdz"
)

type testEnv struct {
	clock       *clock.FakeClock
	ledger      ports.Ledger
	repoManager ports.RepoManager
	liens       application.LienService
	registry    application.RegistryService
	escrow      application.EscrowService
	accounts    application.LedgerService
}

func newTestEnv(t *testing.T, mintFeeBps uint32) *testEnv {
	repoManager, err := db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "badger",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	ledger := inmemoryledger.NewLedger()
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))
	locker := application.NewLocker()

	registry, err := application.NewRegistryService(
		repoManager, ledger, fakeClock, locker, domain.Settings{
			Admin:           admin,
			EscrowAuthority: domain.EscrowAccount,
			FeeCollector:    collector,
			MintFeeBps:      mintFeeBps,
		},
	)
	require.NoError(t, err)

	return &testEnv{
		clock:       fakeClock,
		ledger:      ledger,
		repoManager: repoManager,
		liens:       application.NewLienService(repoManager, ledger, fakeClock, locker),
		registry:    registry,
		escrow:      application.NewEscrowService(repoManager, ledger, fakeClock, locker),
		accounts:    application.NewLedgerService(repoManager, ledger),
	}
}

func (e *testEnv) fund(t *testing.T, account string, amount uint64) {
	t.Helper()
	require.NoError(t, e.accounts.Deposit(t.Context(), admin, settlement, account, amount))
}

func (e *testEnv) approve(t *testing.T, account, spender string, amount uint64) {
	t.Helper()
	require.NoError(t, e.accounts.Approve(t.Context(), account, settlement, spender, amount))
}

func (e *testEnv) balance(t *testing.T, account string) uint64 {
	t.Helper()
	balance, err := e.accounts.BalanceOf(t.Context(), settlement, account)
	require.NoError(t, err)
	return balance
}

func (e *testEnv) mint(t *testing.T, primaryLien string) uint64 {
	t.Helper()
	id, err := e.registry.Mint(t.Context(), owner, application.MintRequest{
		Owner:           owner,
		MetadataRef:     "ipfs://deed",
		SettlementAsset: settlement,
		PrimaryLien:     primaryLien,
		DeclaredValue:   1000,
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) newLien(t *testing.T, balance uint64) *domain.Lien {
	t.Helper()
	lien, err := e.liens.CreateLien(t.Context(), provider, settlement, balance)
	require.NoError(t, err)
	return lien
}

func (e *testEnv) attach(t *testing.T, assetID uint64, lien *domain.Lien) int {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, e.registry.ProposeLien(ctx, owner, assetID, lien.ID))
	slot, err := e.registry.AcceptLien(ctx, lien.Provider, assetID, lien.ID)
	require.NoError(t, err)
	return slot
}

func (e *testEnv) requireOwner(t *testing.T, assetID uint64, expected string) {
	t.Helper()
	asset, err := e.registry.GetAsset(t.Context(), assetID)
	require.NoError(t, err)
	require.Equal(t, expected, asset.Owner)
}
