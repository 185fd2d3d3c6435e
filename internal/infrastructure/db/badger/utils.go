package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const (
	maxRetries   = 5
	dataStoreDir = "data"
)

// createDB opens a badgerhold store in dir, or an in-memory one if dir is empty.
func createDB(dir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dir) <= 0

	opts := badger.DefaultOptions(dir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for range ticker.C {
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					!errors.Is(err, badger.ErrNoRewrite) {
					// nolint:staticcheck
					continue
				}
			}
		}()
	}

	return db, nil
}

// OpenDataStore opens the store shared by the asset, lien, sale and settings repositories so
// that their writes can be committed in a single transaction.
func OpenDataStore(config ...interface{}) (*badgerhold.Store, error) {
	baseDir, logger, err := parseConfig(config...)
	if err != nil {
		return nil, err
	}
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, dataStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open data store: %s", err)
	}
	return store, nil
}

func parseConfig(config ...interface{}) (string, badger.Logger, error) {
	if len(config) != 2 {
		return "", nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return "", nil, fmt.Errorf("invalid logger")
		}
	}
	return baseDir, logger, nil
}

func storeFromConfig(config ...interface{}) (*badgerhold.Store, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config: expected 1 argument, got %d", len(config))
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("expected *badgerhold.Store but got %T", config[0])
	}
	return store, nil
}

func txFromContext(ctx context.Context) *badger.Txn {
	tx, _ := ctx.Value("tx").(*badger.Txn)
	return tx
}

// RunInTx executes fn with a read-write transaction stored in its context and commits it if fn
// succeeds. fn is never retried since it may carry side effects outside the store.
func RunInTx(
	ctx context.Context, store *badgerhold.Store, fn func(ctx context.Context) error,
) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx := store.Badger().NewTransaction(true)
	defer tx.Discard()

	// nolint:staticcheck
	if err := fn(context.WithValue(ctx, "tx", tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// withRetry retries fn on write conflicts, used for writes made outside of RunInTx.
func withRetry(fn func() error) error {
	err := fn()
	attempts := 1
	for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
		time.Sleep(100 * time.Millisecond)
		err = fn()
		attempts++
	}
	return err
}

func get(ctx context.Context, store *badgerhold.Store, key, result interface{}) error {
	if tx := txFromContext(ctx); tx != nil {
		return store.TxGet(tx, key, result)
	}
	return store.Get(key, result)
}

func find(
	ctx context.Context, store *badgerhold.Store, result interface{}, query *badgerhold.Query,
) error {
	if tx := txFromContext(ctx); tx != nil {
		return store.TxFind(tx, result, query)
	}
	return store.Find(result, query)
}

func upsert(ctx context.Context, store *badgerhold.Store, key, data interface{}) error {
	if tx := txFromContext(ctx); tx != nil {
		return store.TxUpsert(tx, key, data)
	}
	return withRetry(func() error {
		return store.Upsert(key, data)
	})
}

func remove(ctx context.Context, store *badgerhold.Store, key, dataType interface{}) error {
	var err error
	if tx := txFromContext(ctx); tx != nil {
		err = store.TxDelete(tx, key, dataType)
	} else {
		err = withRetry(func() error {
			return store.Delete(key, dataType)
		})
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}
