package sqlitedb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// OpenDb opens the sqlite database at dbFile. Write transactions take the database lock when
// they begin so that concurrent writers wait on busy_timeout instead of failing on upgrade.
func OpenDb(dbFile string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", dbFile,
	)
	isInMemory := strings.HasPrefix(dbFile, ":memory:")
	if !isInMemory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// every connection to :memory: would open a distinct database
	if isInMemory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		//nolint:all
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite db: %w", err)
	}
	return db, nil
}
