package manifest

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mccodeai/mmgamerag/pkg/crawler"
)

func TestGenerateSessionID(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	a := GenerateSessionID([]string{"https://b", "https://a"}, "wukong", now)
	b := GenerateSessionID([]string{"https://a", "https://b"}, "wukong", now)
	if a != b {
		t.Errorf("seed order changed the id: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "2026-10-18T09-30-") {
		t.Errorf("id %q lacks timestamp prefix", a)
	}
	if c := GenerateSessionID([]string{"https://a", "https://b"}, "other", now); c == a {
		t.Error("different keyword produced the same id")
	}
}

func TestRunManifest_Write(t *testing.T) {
	started := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	res := &crawler.Result{
		Seeds:    []string{"https://example.com/seed"},
		Keyword:  "wukong",
		MaxDepth: 2,
		Started:  started,
		Finished: started.Add(3 * time.Second),
		Pages: []crawler.PageResult{
			{URL: "https://example.com/seed", Depth: 1, State: crawler.StateRecursed, Extracted: true},
			{URL: "https://example.com/a", Depth: 2, State: crawler.StateFailed, Error: "fetch failed"},
			{URL: "https://example.com/b", Depth: 2, State: crawler.StateIrrelevant},
		},
	}

	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		m := New(GenerateSessionID(res.Seeds, res.Keyword, started.Add(time.Duration(i)*time.Minute)), res)
		if m.Extracted != 1 || len(m.Failures) != 1 || m.Counts["irrelevant"] != 1 {
			t.Fatalf("manifest = %+v", m)
		}
		path, err := m.Write(dir)
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("manifest not written: %v", err)
		}
	}

	index, err := ReadIndex(dir)
	if err != nil {
		t.Fatalf("ReadIndex() error = %v", err)
	}
	if len(index.Runs) != 2 || index.Runs[0].Failed != 1 {
		t.Errorf("index = %+v", index)
	}
}
