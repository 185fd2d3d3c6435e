package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/zyfty/zyftyd/internal/core/application"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	"github.com/zyfty/zyftyd/internal/infrastructure/clock"
	"github.com/zyfty/zyftyd/internal/infrastructure/db"
	inmemoryledger "github.com/zyfty/zyftyd/internal/infrastructure/ledger/inmemory"
	redisledger "github.com/zyfty/zyftyd/internal/infrastructure/ledger/redis"
	"go.opentelemetry.io/otel"
)

var (
	supportedEventDbs = supportedType{
		"badger":   {},
		"postgres": {},
	}
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedLedgers = supportedType{
		"inmemory": {},
		"redis":    {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType              string
	EventDbType         string
	DbDir               string
	DbUrl               string
	EventDbDir          string
	EventDbUrl          string
	LedgerType          string
	RedisUrl            string
	RedisTxNumOfRetries int

	Admin           string
	EscrowAuthority string
	FeeCollector    string
	MintFeeBps      uint32

	OtelCollectorEndpoint string
	OtelPushInterval      int64

	repo        ports.RepoManager
	ledger      ports.Ledger
	clock       ports.Clock
	locker      *application.Locker
	lienSvc     application.LienService
	registrySvc application.RegistryService
	escrowSvc   application.EscrowService
	ledgerSvc   application.LedgerService
}

func (c *Config) String() string {
	clone := *c
	if clone.RedisUrl != "" {
		clone.RedisUrl = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir             = appDataDir("zyftyd")
	DefaultPort                = 7070
	defaultDbType              = "badger"
	defaultEventDbType         = "badger"
	defaultLedgerType          = "inmemory"
	defaultRedisTxNumOfRetries = 10
	defaultLogLevel            = 4
	defaultAdmin               = "zyfty-admin"
	defaultMintFeeBps          = 0
	defaultOtelPushInterval    = 10 // seconds
)

func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("ZYFTYD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	Port = &cli.UintFlag{
		Usage: "Port to listen on for both rest and grpc traffic",
		Name:  "port", EnvVars: env("PORT"),
		Value: uint(DefaultPort),
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (postgres, sqlite, badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if ZYFTYD_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	EventDbType = &cli.StringFlag{
		Usage: "Event database type (postgres, badger)",
		Name:  "event-db-type", EnvVars: env("EVENT_DB_TYPE"),
		Value: defaultEventDbType,
	}

	EventDbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if ZYFTYD_EVENT_DB_TYPE is set to postgres",
		Name:  "pg-event-db-url", EnvVars: env("PG_EVENT_DB_URL"),
	}

	LedgerType = &cli.StringFlag{
		Usage: "Settlement ledger type (inmemory, redis)",
		Name:  "ledger-type", EnvVars: env("LEDGER_TYPE"),
		Value: defaultLedgerType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if ZYFTYD_LEDGER_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of retries for Redis write operations in case of conflicts",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}

	Admin = &cli.StringFlag{
		Usage: "Registry admin account, allowed to deposit funds and update the escrow authority",
		Name:  "admin", EnvVars: env("ADMIN"),
		Value: defaultAdmin,
	}

	EscrowAuthority = &cli.StringFlag{
		Usage: "Account allowed to transfer asset ownership",
		Name:  "escrow-authority", EnvVars: env("ESCROW_AUTHORITY"),
		Value: domain.EscrowAccount,
	}

	FeeCollector = &cli.StringFlag{
		Usage: "Account collecting mint and escrow fees, fallback to the admin if unset",
		Name:  "fee-collector", EnvVars: env("FEE_COLLECTOR"),
	}

	MintFeeBps = &cli.UintFlag{
		Usage: "Mint fee in basis points of the declared asset value",
		Name:  "mint-fee-bps", EnvVars: env("MINT_FEE_BPS"),
		Value: uint(defaultMintFeeBps),
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint, metrics are not pushed if unset",
		Name:  "collector-endpoint", EnvVars: env("COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.Int64Flag{
		Usage: "OpenTelemetry push interval in seconds",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: int64(defaultOtelPushInterval),
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	LogLevel,
	DbType,
	DbUrl,
	EventDbType,
	EventDbUrl,
	LedgerType,
	RedisUrl,
	RedisTxNumOfRetries,
	Admin,
	EscrowAuthority,
	FeeCollector,
	MintFeeBps,
	OtelCollectorEndpoint,
	OtelPushInterval,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var eventDbUrl string
	if c.String(EventDbType.Name) == "postgres" {
		eventDbUrl = c.String(EventDbUrl.Name)
		if eventDbUrl == "" {
			return nil, fmt.Errorf("event db type set to 'postgres' but event db url is missing")
		}
	}

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(LedgerType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("ledger type set to 'redis' but redis url is missing")
		}
	}

	// In case the fee collector is unset, fallback to the admin.
	feeCollector := c.String(FeeCollector.Name)
	if feeCollector == "" {
		feeCollector = c.String(Admin.Name)
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		Port:                  uint32(c.Uint(Port.Name)),
		LogLevel:              c.Int(LogLevel.Name),
		DbType:                c.String(DbType.Name),
		EventDbType:           c.String(EventDbType.Name),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		EventDbDir:            dbPath,
		EventDbUrl:            eventDbUrl,
		LedgerType:            c.String(LedgerType.Name),
		RedisUrl:              redisUrl,
		RedisTxNumOfRetries:   c.Int(RedisTxNumOfRetries.Name),
		Admin:                 c.String(Admin.Name),
		EscrowAuthority:       c.String(EscrowAuthority.Name),
		FeeCollector:          feeCollector,
		MintFeeBps:            uint32(c.Uint(MintFeeBps.Name)),
		OtelCollectorEndpoint: c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:      c.Int64(OtelPushInterval.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, "."+strings.ToLower(appName))
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf(
			"event db type not supported, please select one of: %s",
			supportedEventDbs,
		)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedLedgers.supports(c.LedgerType) {
		return fmt.Errorf(
			"ledger type not supported, please select one of: %s", supportedLedgers,
		)
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval <= 0 {
		return fmt.Errorf("otel push interval must be a positive number of seconds")
	}
	if _, err := domain.NewSettings(
		c.Admin, c.EscrowAuthority, c.FeeCollector, c.MintFeeBps, 0,
	); err != nil {
		return err
	}
	if application.IsReservedAccount(c.Admin) {
		return fmt.Errorf("admin can't be a reserved account")
	}
	if application.IsReservedAccount(c.FeeCollector) {
		return fmt.Errorf("fee collector can't be a reserved account")
	}
	return nil
}

func (c *Config) LienService() (application.LienService, error) {
	if c.lienSvc == nil {
		if err := c.ports(); err != nil {
			return nil, err
		}
		c.lienSvc = application.NewLienService(c.repo, c.ledger, c.clock, c.locker)
	}
	return c.lienSvc, nil
}

func (c *Config) RegistryService() (application.RegistryService, error) {
	if c.registrySvc == nil {
		if err := c.registryService(); err != nil {
			return nil, err
		}
	}
	return c.registrySvc, nil
}

func (c *Config) EscrowService() (application.EscrowService, error) {
	if c.escrowSvc == nil {
		if err := c.ports(); err != nil {
			return nil, err
		}
		c.escrowSvc = application.NewEscrowService(c.repo, c.ledger, c.clock, c.locker)
	}
	return c.escrowSvc, nil
}

func (c *Config) LedgerService() (application.LedgerService, error) {
	if c.ledgerSvc == nil {
		if err := c.ports(); err != nil {
			return nil, err
		}
		c.ledgerSvc = application.NewLedgerService(c.repo, c.ledger)
	}
	return c.ledgerSvc, nil
}

// Close releases the stores opened by the service builders.
func (c *Config) Close() {
	if c.repo != nil {
		c.repo.Close()
	}
	if c.ledger != nil {
		c.ledger.Close()
	}
}

func (c *Config) ports() error {
	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return err
		}
	}
	if c.ledger == nil {
		if err := c.ledgerService(); err != nil {
			return err
		}
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.locker == nil {
		c.locker = application.NewLocker()
	}
	return nil
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "badger":
		eventStoreConfig = []interface{}{c.EventDbDir, logger}
	case "postgres":
		eventStoreConfig = []interface{}{c.EventDbUrl}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}
	application.RegisterMetrics(svc.Events(), otel.GetMeterProvider())

	c.repo = svc
	return nil
}

func (c *Config) ledgerService() error {
	switch c.LedgerType {
	case "inmemory":
		c.ledger = inmemoryledger.NewLedger()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		c.ledger = redisledger.NewLedger(rdb, c.RedisTxNumOfRetries)
	default:
		return fmt.Errorf("unknown ledger type")
	}
	return nil
}

func (c *Config) registryService() error {
	if err := c.ports(); err != nil {
		return err
	}

	settings, err := domain.NewSettings(
		c.Admin, c.EscrowAuthority, c.FeeCollector, c.MintFeeBps, 0,
	)
	if err != nil {
		return err
	}

	svc, err := application.NewRegistryService(c.repo, c.ledger, c.clock, c.locker, *settings)
	if err != nil {
		return err
	}

	c.registrySvc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
