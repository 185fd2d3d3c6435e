package sqlitedb

import (
	"database/sql"
	"fmt"

	"github.com/zyfty/zyftyd/internal/core/domain"
	"github.com/zyfty/zyftyd/internal/infrastructure/db/sqldb"
)

func NewAssetRepository(config ...interface{}) (domain.AssetRepository, error) {
	db, err := dbFromConfig("asset", config...)
	if err != nil {
		return nil, err
	}
	return sqldb.NewAssetRepository(db, sqldb.Question), nil
}

func NewLienRepository(config ...interface{}) (domain.LienRepository, error) {
	db, err := dbFromConfig("lien", config...)
	if err != nil {
		return nil, err
	}
	return sqldb.NewLienRepository(db, sqldb.Question), nil
}

func NewSaleRepository(config ...interface{}) (domain.SaleRepository, error) {
	db, err := dbFromConfig("sale", config...)
	if err != nil {
		return nil, err
	}
	return sqldb.NewSaleRepository(db, sqldb.Question), nil
}

func NewSettingsRepository(config ...interface{}) (domain.SettingsRepository, error) {
	db, err := dbFromConfig("settings", config...)
	if err != nil {
		return nil, err
	}
	return sqldb.NewSettingsRepository(db, sqldb.Question), nil
}

func dbFromConfig(repo string, config ...interface{}) (*sql.DB, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config: expected 1 argument, got %d", len(config))
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open %s repository: expected *sql.DB but got %T", repo, config[0],
		)
	}
	return db, nil
}
