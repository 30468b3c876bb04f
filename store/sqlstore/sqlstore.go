/*
Package sqlstore provides a database/sql implementation of inventory.TxStore.

PURPOSE:
  Persists raw materials, recipes, stock lots and the audit trail. The same
  queries run against two dialects:
    - SQLite (mattn/go-sqlite3): development, tests, single-node installs
    - MySQL (go-sql-driver/mysql): production

KEY TABLES:
  raw_materials, recipes, recipe_ingredients: Reference data
  stock_lots:    Mutable lot quantities with a version column
  audit_entries: Append-only audit trail (seq orders entries)

INDEXES:
  - idx_stock_lots_material_fifo: FIFO scan per material
  - idx_audit_action_batch: Rollback lookup (action, batch_id)
  - reverses_entry_id UNIQUE: A deduction is compensated at most once

CONCURRENCY:
  Every lot write is conditional on the version read in the same
  transaction (UPDATE ... WHERE version = ?). On MySQL, lots read inside
  WithTx are additionally locked with SELECT ... FOR UPDATE. SQLite runs with
  a single connection and immediate transactions, so writers serialize.

FORMATS:
  Quantities are stored as decimal strings, timestamps as fixed-width UTC
  strings (timeLayout) so lexical order equals chronological order.

USAGE:
  store, err := sqlstore.OpenSQLite("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := inventory.NewEngine(store)

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/batch-stock/inventory"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_mysql.sql
var mysqlSchema string

// Fixed-width RFC3339 in UTC; lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

func (d Dialect) schema() string {
	if d == DialectMySQL {
		return mysqlSchema
	}
	return sqliteSchema
}

// lockClause is appended to lot reads made inside a transaction.
func (d Dialect) lockClause(inTx bool) string {
	if inTx && d == DialectMySQL {
		return " FOR UPDATE"
	}
	return ""
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements inventory.Store over a querier. Store embeds one bound to
// the pool; WithTx hands fn one bound to the transaction.
type conn struct {
	q       querier
	dialect Dialect
	inTx    bool
}

// Store implements inventory.TxStore.
type Store struct {
	conn
	db *sql.DB
}

var _ inventory.TxStore = (*Store)(nil)

// Open opens a store for the given driver ("sqlite3" or "mysql").
func Open(driver, dsn string) (*Store, error) {
	switch Dialect(driver) {
	case DialectSQLite, "sqlite":
		return OpenSQLite(dsn)
	case DialectMySQL:
		return OpenMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens a SQLite database at path. Use ":memory:" for an
// in-memory database.
func OpenSQLite(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open(string(DialectSQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newStore(db, DialectSQLite)
}

// OpenMySQL opens a MySQL database from a go-sql-driver DSN.
func OpenMySQL(dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["transaction_isolation"]; !ok {
		cfg.Params["transaction_isolation"] = "'READ-COMMITTED'"
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return newStore(sql.OpenDB(connector), DialectMySQL)
}

func newStore(db *sql.DB, dialect Dialect) (*Store, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{conn: conn{q: db, dialect: dialect}, db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect { return s.dialect }

// Migrate creates the schema. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(s.dialect.schema(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, dialect: s.dialect, inTx: true}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
