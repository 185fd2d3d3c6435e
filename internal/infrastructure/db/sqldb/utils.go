// Package sqldb holds the SQL repositories shared by the sqlite and postgres data stores.
// Queries are written with ? placeholders and rebound for drivers that need numbered ones.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type Placeholder int

const (
	// Question keeps the ? placeholders, used by sqlite.
	Question Placeholder = iota
	// Dollar rewrites placeholders as $1, $2..., used by postgres.
	Dollar
)

func (p Placeholder) rebind(query string) string {
	if p != Dollar {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 10)
	for _, c := range query {
		if c != '?' {
			b.WriteRune(c)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type querier struct {
	db          *sql.DB
	placeholder Placeholder
}

// conn returns the transaction carried by ctx if any, the db otherwise.
func (q querier) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value("tx").(*sql.Tx); ok && tx != nil {
		return tx
	}
	return q.db
}

func (q querier) exec(ctx context.Context, query string, args ...any) error {
	_, err := q.conn(ctx).ExecContext(ctx, q.placeholder.rebind(query), args...)
	return err
}

func (q querier) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.conn(ctx).QueryRowContext(ctx, q.placeholder.rebind(query), args...)
}

func (q querier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.conn(ctx).QueryContext(ctx, q.placeholder.rebind(query), args...)
}

// RunInTx executes fn with a transaction stored in its context, committing it only if fn
// succeeds. A context already carrying a transaction is reused as is.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value("tx").(*sql.Tx); ok && tx != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// nolint:staticcheck
	if err := fn(context.WithValue(ctx, "tx", tx)); err != nil {
		//nolint:all
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: len(s) > 0}
}

func toNullInt64(v int64, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: valid}
}

// nextSequence increments and returns the named counter, starting at 1.
func (q querier) nextSequence(ctx context.Context, name string) (uint64, error) {
	var value uint64
	err := q.queryRow(ctx, `
		INSERT INTO counter (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = counter.value + 1
		RETURNING value`, name,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return value, nil
}
