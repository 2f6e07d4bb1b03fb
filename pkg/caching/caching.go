// Package caching stores fetched bodies (page HTML, image bytes) on disk,
// keyed by URL, with a TTL.
package caching

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache is a file cache. A zero ttl keeps entries forever.
type Cache struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

// NewCache creates the cache directory if needed.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

// file maps a URL to <path>/<first two hex chars>/<sha256>.
func (c *Cache) file(url string) string {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(url)))
	return filepath.Join(c.path, hash[:2], hash)
}

// Get returns the cached body and true on a fresh hit.
func (c *Cache) Get(url string) ([]byte, bool) {
	filePath := c.file(url)

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(info.ModTime()) > c.ttl {
		return nil, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a body. The write goes through a temp file so readers never see
// a partial entry.
func (c *Cache) Set(url string, data []byte) error {
	filePath := c.file(url)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create cache shard: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

// Delete drops an entry. Deleting a missing entry is not an error.
func (c *Cache) Delete(url string) error {
	if err := os.Remove(c.file(url)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
