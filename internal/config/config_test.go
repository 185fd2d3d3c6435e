package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/zyfty/zyftyd/internal/config"
	"github.com/zyfty/zyftyd/internal/core/domain"
)

func loadConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var cfg *config.Config
	var loadErr error
	app := cli.NewApp()
	app.Flags = config.Flags
	app.Action = func(c *cli.Context) error {
		cfg, loadErr = config.LoadConfig(c)
		return nil
	}

	args = append([]string{"zyftyd", "--datadir", t.TempDir()}, args...)
	require.NoError(t, app.Run(args))
	return cfg, loadErr
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(t)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		require.Equal(t, uint32(config.DefaultPort), cfg.Port)
		require.Equal(t, "badger", cfg.DbType)
		require.Equal(t, "inmemory", cfg.LedgerType)
		require.Equal(t, domain.EscrowAccount, cfg.EscrowAuthority)
		require.Equal(t, cfg.Admin, cfg.FeeCollector)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("ZYFTYD_MINT_FEE_BPS", "25")
		t.Setenv("ZYFTYD_FEE_COLLECTOR", "treasury")

		cfg, err := loadConfig(t, "--admin", "registrar")
		require.NoError(t, err)
		require.Equal(t, uint32(25), cfg.MintFeeBps)
		require.Equal(t, "treasury", cfg.FeeCollector)
		require.Equal(t, "registrar", cfg.Admin)
	})

	t.Run("invalid", func(t *testing.T) {
		testCases := []struct {
			name string
			args []string
		}{
			{"postgres without url", []string{"--db-type", "postgres"}},
			{"postgres events without url", []string{"--event-db-type", "postgres"}},
			{"redis without url", []string{"--ledger-type", "redis"}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := loadConfig(t, tc.args...)
				require.Error(t, err)
			})
		}
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown db", []string{"--db-type", "mysql"}},
		{"unknown event db", []string{"--event-db-type", "sqlite"}},
		{"unknown ledger", []string{"--ledger-type", "etcd"}},
		{"fee too high", []string{"--mint-fee-bps", "10001"}},
		{"reserved admin", []string{"--admin", domain.RegistryAccount}},
		{"reserved fee collector", []string{"--fee-collector", domain.LienAccount("1")}},
		{"empty escrow authority", []string{"--escrow-authority", ""}},
		{
			"otel without push interval",
			[]string{"--collector-endpoint", "http://localhost:4318", "--otel-push-interval", "0"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig(t, tc.args...)
			require.NoError(t, err)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestServices(t *testing.T) {
	cfg, err := loadConfig(t, "--admin", "registrar", "--mint-fee-bps", "50")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	t.Cleanup(cfg.Close)

	ctx := t.Context()

	registry, err := cfg.RegistryService()
	require.NoError(t, err)
	settings, err := registry.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "registrar", settings.Admin)
	require.Equal(t, uint32(50), settings.MintFeeBps)

	ledger, err := cfg.LedgerService()
	require.NoError(t, err)
	require.NoError(t, ledger.Deposit(ctx, "registrar", "usdz", "alice", 100))

	liens, err := cfg.LienService()
	require.NoError(t, err)
	lien, err := liens.CreateLien(ctx, "lender", "usdz", 10)
	require.NoError(t, err)

	// services share the same stores
	escrow, err := cfg.EscrowService()
	require.NoError(t, err)
	require.NoError(t, ledger.Approve(ctx, "alice", "usdz", lien.Account(), 10))
	paid, err := liens.Pay(ctx, "alice", lien.ID, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(10), paid)

	sale, err := escrow.GetSale(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.SaleStateNone, sale.State)
}
