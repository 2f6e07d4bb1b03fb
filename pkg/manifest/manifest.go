// Package manifest writes a YAML record of every crawl run.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mccodeai/mmgamerag/pkg/crawler"
)

// RunManifest is written to <dir>/runs/<session id>.yaml.
type RunManifest struct {
	SessionID   string               `yaml:"session_id"`
	GeneratedAt string               `yaml:"generated_at"`
	Keyword     string               `yaml:"keyword"`
	MaxDepth    int                  `yaml:"max_depth"`
	Seeds       []string             `yaml:"seeds"`
	Duration    string               `yaml:"duration"`
	Pages       int                  `yaml:"pages"`
	Extracted   int                  `yaml:"extracted"`
	Counts      map[string]int       `yaml:"counts"`
	Failures    []crawler.PageResult `yaml:"failures,omitempty"`
	Results     []crawler.PageResult `yaml:"results"`
}

// RunInfo is one line of the runs index.
type RunInfo struct {
	SessionID string    `yaml:"session_id"`
	Created   time.Time `yaml:"created"`
	Keyword   string    `yaml:"keyword"`
	Pages     int       `yaml:"pages"`
	Extracted int       `yaml:"extracted"`
	Failed    int       `yaml:"failed"`
}

// RunIndex is <dir>/runs/index.yaml.
type RunIndex struct {
	Runs []RunInfo `yaml:"runs"`
}

// GenerateSessionID creates a timestamp-first id from the seeds and keyword.
// Format: YYYY-MM-DDTHH-MM-{hash}
func GenerateSessionID(seeds []string, keyword string, now time.Time) string {
	normalized := make([]string, len(seeds))
	copy(normalized, seeds)
	sort.Strings(normalized)

	h := sha256.New()
	for _, s := range normalized {
		h.Write([]byte(s))
		h.Write([]byte("\n"))
	}
	h.Write([]byte(keyword))
	shortHash := hex.EncodeToString(h.Sum(nil)[:6])

	return fmt.Sprintf("%s-%s", now.Format("2006-01-02T15-04"), shortHash)
}

// New builds the manifest of a finished crawl.
func New(sessionID string, res *crawler.Result) *RunManifest {
	counts := make(map[string]int)
	for state, n := range res.Counts() {
		counts[string(state)] = n
	}
	return &RunManifest{
		SessionID:   sessionID,
		GeneratedAt: res.Finished.Format(time.RFC3339),
		Keyword:     res.Keyword,
		MaxDepth:    res.MaxDepth,
		Seeds:       res.Seeds,
		Duration:    res.Finished.Sub(res.Started).Round(time.Millisecond).String(),
		Pages:       len(res.Pages),
		Extracted:   res.Extracted(),
		Counts:      counts,
		Failures:    res.Failures(),
		Results:     res.Pages,
	}
}

// Write saves the manifest and appends it to the runs index. It returns the
// manifest path.
func (m *RunManifest) Write(dir string) (string, error) {
	runsDir := filepath.Join(dir, "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(runsDir, m.SessionID+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	index, err := ReadIndex(dir)
	if err != nil {
		return "", err
	}
	created, _ := time.Parse(time.RFC3339, m.GeneratedAt)
	index.Runs = append(index.Runs, RunInfo{
		SessionID: m.SessionID,
		Created:   created,
		Keyword:   m.Keyword,
		Pages:     m.Pages,
		Extracted: m.Extracted,
		Failed:    len(m.Failures),
	})
	data, err = yaml.Marshal(index)
	if err != nil {
		return "", fmt.Errorf("failed to encode runs index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runsDir, "index.yaml"), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write runs index: %w", err)
	}
	return path, nil
}

// ReadIndex loads the runs index. A missing index is empty.
func ReadIndex(dir string) (*RunIndex, error) {
	data, err := os.ReadFile(filepath.Join(dir, "runs", "index.yaml"))
	if os.IsNotExist(err) {
		return &RunIndex{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs index: %w", err)
	}
	var index RunIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse runs index: %w", err)
	}
	return &index, nil
}
