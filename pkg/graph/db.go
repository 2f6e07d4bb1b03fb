// Package graph stores the walkthrough entity graph
// (Category -> Title -> Subtitle -> Text / Image) in SQLite or PostgreSQL.
package graph

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mccodeai/mmgamerag/pkg/apperr"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// SQLStore is the SQL implementation of Store.
type SQLStore struct {
	*sql.DB
	dialect Dialect
	dsn     string
}

// openSQLite opens a SQLite database and enables foreign keys.
func openSQLite(dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection shares :memory: databases and avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return sqlDB, nil
}

// Open connects to the graph store and makes sure the schema exists.
// Connection failures wrap apperr.ErrStoreUnavailable.
func Open(ctx context.Context, driverName, dsn string) (*SQLStore, error) {
	var sqlDB *sql.DB
	var err error

	switch Dialect(driverName) {
	case SQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		sqlDB, err = openSQLite(dsn)
	case Postgres:
		sqlDB, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unknown graph driver %q", driverName)
	}
	if err != nil {
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
	}

	db := NewWithDB(sqlDB, Dialect(driverName))
	db.dsn = dsn
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(sqlDB *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{DB: sqlDB, dialect: dialect}
}

func (db *SQLStore) Dialect() Dialect {
	return db.dialect
}

// InitSchema creates the tables if they do not exist.
func (db *SQLStore) InitSchema(ctx context.Context) error {
	schema := sqliteSchema
	if db.dialect == Postgres {
		schema = postgresSchema
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (db *SQLStore) rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// wrapErr marks connection failures with apperr.ErrStoreUnavailable.
func wrapErr(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: failed to %s: %w", apperr.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
