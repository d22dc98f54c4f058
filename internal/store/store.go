package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaDDL string

// Store is the Postgres-backed Runner
type Store struct {
	db         *sqlx.DB
	maxRetries int
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxRetries int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, maxRetries: maxRetries}, nil
}

// Migrate creates the catalog tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// RunInTx runs fn at repeatable read. The transaction is rolled back when fn
// fails or ctx is cancelled, and retried as a whole on conflicts.
func (s *Store) RunInTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	return Retry(ctx, op, s.maxRetries, func() error {
		return s.runOnce(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, fn)
	})
}

// View runs fn in a read-only read committed transaction
func (s *Store) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.runOnce(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}, fn)
}

func (s *Store) runOnce(ctx context.Context, opts *sql.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Commit()
}

// pgTx implements Tx on one sqlx transaction
type pgTx struct {
	tx *sqlx.Tx
}

var _ Tx = (*pgTx)(nil)
