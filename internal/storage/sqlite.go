package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"predictionledger/internal/ledger"
)

// DefaultCacheSize is the number of resolved markets kept in memory
const DefaultCacheSize = 1024

// Store is the sqlite-backed ledger storage, value-transfer and event outbox.
//
// The pool is limited to a single connection, so every Atomic call has
// exclusive access to the database until it commits or rolls back. Query
// methods on Store must not be called from inside an Atomic callback.
type Store struct {
	db     *sql.DB
	frozen *lru.Cache[string, ledger.Market]
}

// Option configures a Store
type Option func(*options)

type options struct {
	cacheSize int
}

// WithCacheSize sets the resolved-market cache size
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// Open opens the sqlite database at dbPath (":memory:" for an in-memory
// database), enables WAL mode and runs migrations.
func Open(dbPath string, opts ...Option) (*Store, error) {
	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, err
		}
		dsn = absPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cache, err := lru.New[string, ledger.Market](o.cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create market cache: %w", err)
	}

	return &Store{db: db, frozen: cache}, nil
}

// DB returns the database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Atomic implements ledger.Store
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS protocol_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		authority TEXT NOT NULL,
		total_markets INTEGER NOT NULL DEFAULT 0,
		is_paused INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS markets (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		end_timestamp INTEGER NOT NULL,
		created_timestamp INTEGER NOT NULL,
		resolved_timestamp INTEGER NOT NULL DEFAULT 0,
		min_bet_amount INTEGER NOT NULL,
		is_resolved INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL DEFAULT '',
		total_yes_amount INTEGER NOT NULL DEFAULT 0,
		total_no_amount INTEGER NOT NULL DEFAULT 0,
		total_participants INTEGER NOT NULL DEFAULT 0,
		authority TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stakes (
		market_id TEXT NOT NULL REFERENCES markets(id),
		participant TEXT NOT NULL,
		amount INTEGER NOT NULL,
		prediction TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		claimed INTEGER NOT NULL DEFAULT 0,
		winnings INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (market_id, participant)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		identity TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_identity TEXT NOT NULL,
		to_identity TEXT NOT NULL,
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		market_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		market_id TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deadline_notices (
		market_id TEXT PRIMARY KEY REFERENCES markets(id),
		notified_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_markets_open ON markets(is_resolved, end_timestamp);
	CREATE INDEX IF NOT EXISTS idx_stakes_participant ON stakes(participant);
	CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_identity);
	CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_identity);
	CREATE INDEX IF NOT EXISTS idx_events_market ON events(market_id)`,
}

// runMigrations creates the necessary tables
func runMigrations(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
