package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	setCrawled = "crawled"
	setLinks   = "links"

	// DefaultDBName is the SQLite ledger file inside the ledger directory.
	DefaultDBName = "ledger.db"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    set_name   TEXT NOT NULL,
    url        TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (set_name, url)
);
`

// SQLiteLedger stores both sets in one table. The primary key makes every
// insert an atomic upsert, so no lock file is needed.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens <dir>/ledger.db, or an in-memory ledger when dir is ":memory:".
func OpenSQLite(dir string) (*SQLiteLedger, error) {
	dsn := dir
	if dir != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		dsn = filepath.Join(dir, DefaultDBName)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) AddCrawled(ctx context.Context, url string) (bool, error) {
	return l.add(ctx, setCrawled, url)
}

func (l *SQLiteLedger) HasCrawled(ctx context.Context, url string) (bool, error) {
	return l.has(ctx, setCrawled, url)
}

func (l *SQLiteLedger) AddLink(ctx context.Context, url string) (bool, error) {
	return l.add(ctx, setLinks, url)
}

func (l *SQLiteLedger) HasLink(ctx context.Context, url string) (bool, error) {
	return l.has(ctx, setLinks, url)
}

func (l *SQLiteLedger) add(ctx context.Context, set, url string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (set_name, url) VALUES (?, ?)
		ON CONFLICT(set_name, url) DO NOTHING
	`, set, NormalizeURL(url))
	if err != nil {
		return false, fmt.Errorf("failed to add %s entry: %w", set, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add %s entry: %w", set, err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) has(ctx context.Context, set, url string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE set_name = ? AND url = ?",
		set, NormalizeURL(url)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query %s entry: %w", set, err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	rows, err := l.db.QueryContext(ctx, "SELECT set_name, COUNT(*) FROM ledger_entries GROUP BY set_name")
	if err != nil {
		return stats, fmt.Errorf("failed to query ledger stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var set string
		var n int
		if err := rows.Scan(&set, &n); err != nil {
			return stats, fmt.Errorf("failed to scan ledger stats: %w", err)
		}
		switch set {
		case setCrawled:
			stats.Crawled = n
		case setLinks:
			stats.Links = n
		}
	}
	return stats, rows.Err()
}

func (l *SQLiteLedger) Reset(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM ledger_entries"); err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
