package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const (
	driverName     = "postgres"
	connectTimeout = 5 * time.Second
	// invalid_catalog_name, returned when the database in the DSN does not exist.
	errCodeUnknownDatabase = "3D000"
)

// OpenDb opens and pings the database at dsn. With autoCreate set, a missing database is
// created first. Only URL formatted DSNs support auto creation.
func OpenDb(dsn string, autoCreate bool) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil && autoCreate && isUnknownDatabase(err) {
		log.Info("postgres database does not exist, creating it...")
		if err := createDatabase(ctx, dsn); err != nil {
			return nil, fmt.Errorf("failed to create postgres db: %v", err)
		}
		err = db.PingContext(ctx)
	}
	if err != nil {
		//nolint:all
		db.Close()
		return nil, fmt.Errorf("unable to establish connection with db: %v", err)
	}
	return db, nil
}

func isUnknownDatabase(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == errCodeUnknownDatabase
}

// createDatabase connects to the server default database and creates the one named in dsn.
func createDatabase(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Errorf("cannot auto-create database unless the DSN uses URL format")
	}

	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return err
	}
	dbName := strings.TrimPrefix(parsedURL.Path, "/")
	if dbName == "" {
		return fmt.Errorf("cannot auto-create when database name is empty")
	}
	parsedURL.Path = ""

	rootDB, err := sql.Open(driverName, parsedURL.String())
	if err != nil {
		return err
	}
	// nolint:errcheck
	defer rootDB.Close()

	query := "CREATE DATABASE " + pq.QuoteIdentifier(dbName)
	log.Debugf("executing query '%s'", query)
	_, err = rootDB.ExecContext(ctx, query)
	return err
}
