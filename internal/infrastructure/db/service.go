package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/core/ports"
	badgerdb "github.com/zyfty/zyftyd/internal/infrastructure/db/badger"
	pgdb "github.com/zyfty/zyftyd/internal/infrastructure/db/postgres"
	"github.com/zyfty/zyftyd/internal/infrastructure/db/sqldb"
	sqlitedb "github.com/zyfty/zyftyd/internal/infrastructure/db/sqlite"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"badger":   badgerdb.NewEventRepository,
		"postgres": pgdb.NewEventRepository,
	}
	assetStoreTypes = map[string]func(...interface{}) (domain.AssetRepository, error){
		"badger":   badgerdb.NewAssetRepository,
		"sqlite":   sqlitedb.NewAssetRepository,
		"postgres": pgdb.NewAssetRepository,
	}
	lienStoreTypes = map[string]func(...interface{}) (domain.LienRepository, error){
		"badger":   badgerdb.NewLienRepository,
		"sqlite":   sqlitedb.NewLienRepository,
		"postgres": pgdb.NewLienRepository,
	}
	saleStoreTypes = map[string]func(...interface{}) (domain.SaleRepository, error){
		"badger":   badgerdb.NewSaleRepository,
		"sqlite":   sqlitedb.NewSaleRepository,
		"postgres": pgdb.NewSaleRepository,
	}
	settingsStoreTypes = map[string]func(...interface{}) (domain.SettingsRepository, error){
		"badger":   badgerdb.NewSettingsRepository,
		"sqlite":   sqlitedb.NewSettingsRepository,
		"postgres": pgdb.NewSettingsRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore    domain.EventRepository
	assetStore    domain.AssetRepository
	lienStore     domain.LienRepository
	saleStore     domain.SaleRepository
	settingsStore domain.SettingsRepository

	runInTx func(ctx context.Context, fn func(ctx context.Context) error) error
	closeFn func()
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("event store type not supported")
	}
	assetStoreFactory, ok := assetStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	lienStoreFactory := lienStoreTypes[config.DataStoreType]
	saleStoreFactory := saleStoreTypes[config.DataStoreType]
	settingsStoreFactory := settingsStoreTypes[config.DataStoreType]

	var eventStore domain.EventRepository
	var err error

	switch config.EventStoreType {
	case "badger":
		eventStore, err = eventStoreFactory(config.EventStoreConfig...)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %s", err)
		}
	case "postgres":
		db, err := openPostgres(config.EventStoreConfig)
		if err != nil {
			return nil, err
		}
		eventStore, err = eventStoreFactory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %s", err)
		}
	}

	svc := &service{eventStore: eventStore}
	var repoConfig []interface{}

	switch config.DataStoreType {
	case "badger":
		store, err := badgerdb.OpenDataStore(config.DataStoreConfig...)
		if err != nil {
			return nil, err
		}
		repoConfig = []interface{}{store}
		svc.runInTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return badgerdb.RunInTx(ctx, store, fn)
		}
		svc.closeFn = closeStore(store)
	case "postgres":
		db, err := openPostgres(config.DataStoreConfig)
		if err != nil {
			return nil, err
		}
		if err := migratePostgres(db); err != nil {
			return nil, err
		}
		repoConfig = []interface{}{db}
		svc.runInTx = sqlRunInTx(db)
		svc.closeFn = closeDb(db)
	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}
		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		db, err := sqlitedb.OpenDb(filepath.Join(baseDir, sqliteDbFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}
		if err := migrateSqlite(db); err != nil {
			return nil, err
		}
		repoConfig = []interface{}{db}
		svc.runInTx = sqlRunInTx(db)
		svc.closeFn = closeDb(db)
	}

	if svc.assetStore, err = assetStoreFactory(repoConfig...); err != nil {
		return nil, fmt.Errorf("failed to open asset store: %s", err)
	}
	if svc.lienStore, err = lienStoreFactory(repoConfig...); err != nil {
		return nil, fmt.Errorf("failed to open lien store: %s", err)
	}
	if svc.saleStore, err = saleStoreFactory(repoConfig...); err != nil {
		return nil, fmt.Errorf("failed to open sale store: %s", err)
	}
	if svc.settingsStore, err = settingsStoreFactory(repoConfig...); err != nil {
		return nil, fmt.Errorf("failed to open settings store: %s", err)
	}

	return svc, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Assets() domain.AssetRepository {
	return s.assetStore
}

func (s *service) Liens() domain.LienRepository {
	return s.lienStore
}

func (s *service) Sales() domain.SaleRepository {
	return s.saleStore
}

func (s *service) Settings() domain.SettingsRepository {
	return s.settingsStore
}

func (s *service) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.runInTx(ctx, fn)
}

func (s *service) Close() {
	s.eventStore.Close()
	s.assetStore.Close()
	s.lienStore.Close()
	s.saleStore.Close()
	s.settingsStore.Close()
	s.closeFn()
}

func openPostgres(config []interface{}) (*sql.DB, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid data store config for postgres")
	}
	dsn, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid DSN for postgres")
	}
	autoCreate, ok := config[1].(bool)
	if !ok {
		return nil, fmt.Errorf("invalid autocreate flag for postgres")
	}

	db, err := pgdb.OpenDb(dsn, autoCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %s", err)
	}
	return db, nil
}

func migratePostgres(db *sql.DB) error {
	pgDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to init postgres migration driver: %s", err)
	}
	source, err := iofs.New(pgMigration, "postgres/migration")
	if err != nil {
		return fmt.Errorf("failed to embed postgres migrations: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", pgDriver)
	if err != nil {
		return fmt.Errorf("failed to create postgres migration instance: %s", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run postgres migrations: %s", err)
	}
	return nil
}

func migrateSqlite(db *sql.DB) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to init driver: %s", err)
	}
	source, err := iofs.New(migrations, "sqlite/migration")
	if err != nil {
		return fmt.Errorf("failed to embed migrations: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "zyftydb", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	return nil
}

func sqlRunInTx(db *sql.DB) func(context.Context, func(ctx context.Context) error) error {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return sqldb.RunInTx(ctx, db, fn)
	}
}

func closeStore(store *badgerhold.Store) func() {
	return func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("failed to close data store")
		}
	}
}

func closeDb(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("failed to close db")
		}
	}
}
