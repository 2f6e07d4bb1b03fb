// Package ledger records which URLs were crawled and which were confirmed
// relevant, so repeated runs do not redo work.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/mccodeai/mmgamerag/internal/common"
)

// Ledger is two append-only sets of normalized URLs. Add reports whether the
// URL was newly added.
type Ledger interface {
	AddCrawled(ctx context.Context, url string) (bool, error)
	HasCrawled(ctx context.Context, url string) (bool, error)
	AddLink(ctx context.Context, url string) (bool, error)
	HasLink(ctx context.Context, url string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

type Stats struct {
	Crawled int `json:"crawled" yaml:"crawled"`
	Links   int `json:"links" yaml:"links"`
}

// Open returns the ledger backend named by backend ("file" or "sqlite")
// rooted at dir.
func Open(backend, dir string, lockTimeout time.Duration) (Ledger, error) {
	switch backend {
	case "", "file":
		return NewFileLedger(dir, lockTimeout)
	case "sqlite":
		return OpenSQLite(dir)
	}
	return nil, fmt.Errorf("unknown ledger backend %q", backend)
}

// NormalizeURL is the ledger key for url.
func NormalizeURL(url string) string {
	return common.NormalizeURL(url)
}
