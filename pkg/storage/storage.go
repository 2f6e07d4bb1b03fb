// Package storage persists page dumps and the image-context side file.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mccodeai/mmgamerag/internal/common"
	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/apperr"
	"github.com/mccodeai/mmgamerag/pkg/filelock"
)

const (
	// PageSuffix ends every text-with-images dump file name.
	PageSuffix = "_text_with_images.html"
	textSuffix = "_text.txt"
	metaSuffix = "_meta.yaml"

	imageContextFile = "mmimg.json"
)

// FileName maps a page URL to its dump file name: the normalized URL with
// ':' replaced by '=' and '/' replaced by '|', plus PageSuffix.
func FileName(pageURL string) string {
	name := common.NormalizeURL(pageURL)
	name = strings.ReplaceAll(name, ":", "=")
	name = strings.ReplaceAll(name, "/", "|")
	return name + PageSuffix
}

// URLFromFileName reverses FileName.
func URLFromFileName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, PageSuffix)
	name = strings.ReplaceAll(name, "|", "/")
	name = strings.ReplaceAll(name, "=", ":")
	return name
}

// PageMeta is written next to each dump.
type PageMeta struct {
	URL         string    `yaml:"url"`
	Title       string    `yaml:"title"`
	Language    string    `yaml:"language,omitempty"`
	TextBlocks  int       `yaml:"text_blocks"`
	Images      int       `yaml:"images"`
	ContentHash string    `yaml:"content_hash"`
	SavedAt     time.Time `yaml:"saved_at"`
}

type Storage struct {
	dir         string
	lockTimeout time.Duration
}

// New creates the dump directory if needed.
func New(dir string, lockTimeout time.Duration) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &Storage{dir: dir, lockTimeout: lockTimeout}, nil
}

func (s *Storage) Dir() string {
	return s.dir
}

// SavePage writes the text-with-images dump, the text-only dump and the meta
// file. It returns the dump file name.
func (s *Storage) SavePage(page *models.Page) (string, error) {
	name := FileName(page.URL)
	base := strings.TrimSuffix(name, PageSuffix)
	withImages := page.TextWithImages()

	if err := s.saveFile(name, []byte(withImages)); err != nil {
		return "", err
	}
	if err := s.saveFile(base+textSuffix, []byte(page.PlainText())); err != nil {
		return "", err
	}

	meta := PageMeta{
		URL:         common.NormalizeURL(page.URL),
		Title:       page.Title,
		Language:    page.Language,
		TextBlocks:  page.TextCount(),
		Images:      len(page.Images()),
		ContentHash: common.ContentHash([]byte(withImages)),
		SavedAt:     time.Now().UTC(),
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode page meta: %w", err)
	}
	if err := s.saveFile(base+metaSuffix, data); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Storage) saveFile(name string, content []byte) error {
	if err := os.WriteFile(filepath.Join(s.dir, name), content, 0644); err != nil {
		return fmt.Errorf("error saving file %s: %w", name, err)
	}
	return nil
}

// ListPages returns the dump file names in lexical order.
func (s *Storage) ListPages() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("error listing pages: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), PageSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadPage returns the text-with-images dump.
func (s *Storage) ReadPage(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: page %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("error reading file: %w", err)
	}
	return string(data), nil
}

// ReadMeta returns the meta file written alongside a dump.
func (s *Storage) ReadMeta(name string) (*PageMeta, error) {
	base := strings.TrimSuffix(filepath.Base(name), PageSuffix)
	data, err := os.ReadFile(filepath.Join(s.dir, base+metaSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: meta for %s", apperr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading page meta: %w", err)
	}
	var meta PageMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("error decoding page meta: %w", err)
	}
	return &meta, nil
}

// HasPage reports whether a dump exists for the URL.
func (s *Storage) HasPage(pageURL string) bool {
	_, err := os.Stat(filepath.Join(s.dir, FileName(pageURL)))
	return err == nil
}

// AppendImageContexts appends records to the image-context JSON array under
// the side file's lock.
func (s *Storage) AppendImageContexts(ctx context.Context, records []models.ImageContext) error {
	if len(records) == 0 {
		return nil
	}
	path := filepath.Join(s.dir, imageContextFile)
	lock, err := filelock.Acquire(ctx, path+".lock", s.lockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	existing, err := readImageContexts(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(append(existing, records...), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode image contexts: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write image contexts: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write image contexts: %w", err)
	}
	return nil
}

// ReadImageContexts returns every record in the side file.
func (s *Storage) ReadImageContexts() ([]models.ImageContext, error) {
	return readImageContexts(filepath.Join(s.dir, imageContextFile))
}

func readImageContexts(path string) ([]models.ImageContext, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image contexts: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var records []models.ImageContext
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode image contexts: %w", err)
	}
	return records, nil
}
