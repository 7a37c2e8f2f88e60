// Package sqlite implements storage.Store on a single SQLite file.
//
// The schema mirrors the classic geocoder layout: a word table, a
// placex table holding the serialized places, a search_name table
// with one row per (place, token, column) and a postcode table.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/poiesic/placefinder/storage"
)

const driverName = "sqlite3"

// Store implements storage.Store for SQLite.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS word (
		word_id INTEGER PRIMARY KEY AUTOINCREMENT,
		word_token TEXT NOT NULL,
		type TEXT NOT NULL,
		word TEXT NOT NULL DEFAULT '',
		info TEXT NOT NULL DEFAULT '',
		count INTEGER NOT NULL DEFAULT 0,
		addr_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE(word_token, type, word)
	)`,
	`CREATE TABLE IF NOT EXISTS placex (
		place_id INTEGER PRIMARY KEY,
		class TEXT NOT NULL,
		type TEXT NOT NULL,
		country_code TEXT NOT NULL,
		rank_address INTEGER NOT NULL,
		parent_place_id INTEGER NOT NULL,
		housenumber TEXT NOT NULL,
		data BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_placex_category ON placex(class, type)`,
	`CREATE INDEX IF NOT EXISTS idx_placex_parent ON placex(parent_place_id, housenumber)`,
	`CREATE INDEX IF NOT EXISTS idx_placex_country ON placex(rank_address, country_code)`,
	`CREATE TABLE IF NOT EXISTS search_name (
		col INTEGER NOT NULL,
		token INTEGER NOT NULL,
		place_id INTEGER NOT NULL,
		PRIMARY KEY(col, token, place_id)
	) WITHOUT ROWID`,
	`CREATE INDEX IF NOT EXISTS idx_search_name_place ON search_name(place_id)`,
	`CREATE TABLE IF NOT EXISTS location_postcode (
		id INTEGER PRIMARY KEY,
		postcode TEXT NOT NULL,
		data BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_location_postcode ON location_postcode(postcode)`,
	`CREATE TABLE IF NOT EXISTS properties (
		property TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// NewStore opens or creates the database file at path.
func NewStore(path string, opts ...Option) (storage.Store, error) {
	return openStore(path+"?_journal_mode=WAL&_busy_timeout=5000", opts...)
}

// NewMemoryStore creates an in-memory store for testing.
// Caller must close the store when done.
func NewMemoryStore(opts ...Option) (storage.Store, error) {
	return openStore(":memory:", opts...)
}

func openStore(dsn string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "store")

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	// a single connection keeps in-memory databases alive and
	// serializes writers
	db.SetMaxOpenConns(1)
	s.db = db

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type txKey struct{}

func txFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// conn returns the transaction of ctx or the database itself.
func (s *Store) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// withTx runs fn in the transaction of ctx or in a new one that is
// committed when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// WithTransaction executes fn within a single transaction. Repository
// calls made with the context passed to fn join the transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
