package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mccodeai/mmgamerag/pkg/filelock"
)

const (
	crawledFile = "crawled_urls.json"
	linksFile   = "links.json"
)

// FileLedger keeps each set as a JSON array of strings. Every update is one
// critical section under the file's lock: read, append, write, release.
type FileLedger struct {
	dir         string
	lockTimeout time.Duration
}

func NewFileLedger(dir string, lockTimeout time.Duration) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &FileLedger{dir: dir, lockTimeout: lockTimeout}, nil
}

func (l *FileLedger) AddCrawled(ctx context.Context, url string) (bool, error) {
	return l.add(ctx, crawledFile, url)
}

func (l *FileLedger) HasCrawled(ctx context.Context, url string) (bool, error) {
	return l.has(ctx, crawledFile, url)
}

func (l *FileLedger) AddLink(ctx context.Context, url string) (bool, error) {
	return l.add(ctx, linksFile, url)
}

func (l *FileLedger) HasLink(ctx context.Context, url string) (bool, error) {
	return l.has(ctx, linksFile, url)
}

func (l *FileLedger) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	crawled, err := l.snapshot(ctx, crawledFile)
	if err != nil {
		return stats, err
	}
	links, err := l.snapshot(ctx, linksFile)
	if err != nil {
		return stats, err
	}
	stats.Crawled = len(crawled)
	stats.Links = len(links)
	return stats, nil
}

// Reset wipes both sets.
func (l *FileLedger) Reset(ctx context.Context) error {
	for _, name := range []string{crawledFile, linksFile} {
		err := l.locked(ctx, name, func(path string) error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to reset %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *FileLedger) Close() error {
	return nil
}

func (l *FileLedger) add(ctx context.Context, name, url string) (bool, error) {
	key := NormalizeURL(url)
	added := false
	err := l.locked(ctx, name, func(path string) error {
		urls, err := readSet(path)
		if err != nil {
			return err
		}
		for _, u := range urls {
			if u == key {
				return nil
			}
		}
		if err := writeSet(path, append(urls, key)); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func (l *FileLedger) has(ctx context.Context, name, url string) (bool, error) {
	key := NormalizeURL(url)
	urls, err := l.snapshot(ctx, name)
	if err != nil {
		return false, err
	}
	for _, u := range urls {
		if u == key {
			return true, nil
		}
	}
	return false, nil
}

func (l *FileLedger) snapshot(ctx context.Context, name string) ([]string, error) {
	var urls []string
	err := l.locked(ctx, name, func(path string) error {
		var err error
		urls, err = readSet(path)
		return err
	})
	return urls, err
}

func (l *FileLedger) locked(ctx context.Context, name string, fn func(path string) error) error {
	path := filepath.Join(l.dir, name)
	lock, err := filelock.Acquire(ctx, path+".lock", l.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn(path)
}

func readSet(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s: %w", filepath.Base(path), err)
	}
	return urls, nil
}

func writeSet(path string, urls []string) error {
	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
