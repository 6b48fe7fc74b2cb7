// Package store provides the SQLite relational store holding layer tables.
//
// Every connection attaches the layer namespace database under the schema
// name "vector_layer" and registers the SQL functions layer queries need.
// Layer tables, their spatial indexes and the geometry column registry live
// in that namespace; metadata lives in the main database. Both are written
// in the same transaction, so DDL, row loads and metadata commit together.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Namespace is the schema name layer tables are created in.
const Namespace = "vector_layer"

// Config configures the store.
type Config struct {
	// Path is the main database file
	Path string

	// LayerPath is the namespace database file; defaults to Path + ".layers"
	LayerPath string

	BusyTimeout  time.Duration
	MaxOpenConns int
}

// Querier is the subset of *sql.DB and *sql.Tx used by layer code.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store owns the connection pool.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
}

type connector struct {
	dsn string
	drv *sqlite3.SQLiteDriver
}

func (c *connector) Connect(context.Context) (driver.Conn, error) { return c.drv.Open(c.dsn) }
func (c *connector) Driver() driver.Driver                        { return c.drv }

// Open opens (creating if needed) the main and namespace databases.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if cfg.LayerPath == "" {
		cfg.LayerPath = cfg.Path + ".layers"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	for _, p := range []string{cfg.Path, cfg.LayerPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("store: failed to create directory: %w", err)
		}
	}

	layerPath := cfg.LayerPath
	drv := &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := registerFunctions(conn); err != nil {
				return err
			}
			_, err := conn.Exec("ATTACH DATABASE ? AS "+Namespace, []driver.Value{layerPath})
			return err
		},
	}

	// Rollback journal keeps commits spanning both files atomic; WAL does not.
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_txlock=immediate&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db := sql.OpenDB(&connector{dsn: dsn, drv: drv})
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	s := &Store{db: db, cfg: cfg, logger: logger.With().Str("component", "store").Logger()}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info().Str("path", cfg.Path).Str("layers", cfg.LayerPath).Msg("store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createGeometryColumnsSQL); err != nil {
		return lerrors.NewStoreError(lerrors.CodeDDLFailed, "create geometry_columns", err)
	}
	return nil
}

const createGeometryColumnsSQL = `
CREATE TABLE IF NOT EXISTS ` + Namespace + `.geometry_columns (
    table_name TEXT PRIMARY KEY,
    column_name TEXT NOT NULL,
    geometry_type TEXT NOT NULL,
    srid INTEGER NOT NULL
)`

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// InTx runs fn in a transaction, committing when it returns nil and rolling
// back otherwise. Errors from fn are returned unchanged.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeTxFailed, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return lerrors.NewStoreError(lerrors.CodeTxFailed, "commit transaction", err)
	}
	return nil
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualified returns the quoted namespace-qualified name of a layer object.
func Qualified(name string) string {
	return Namespace + "." + QuoteIdent(name)
}
