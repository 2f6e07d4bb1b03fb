package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/search"
)

func testConfig(t *testing.T) *models.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := models.NewDefaultConfig()
	cfg.SetDataDir(dir)
	cfg.Graph.SiteSuffixes = []string{"-GamerSky.com"}
	cfg.Crawl.CacheTTL = 0
	cfg.LLM.APIKey = "test-key"
	return cfg
}

func setupApp(t *testing.T, cfg *models.Config) *App {
	t.Helper()
	logger := NewLogger(io.Discard, cfg.App, true)
	a := New(cfg, logger)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func seedGraph(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()

	store, err := a.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() failed: %v", err)
	}
	w, err := a.GraphWriter(store)
	if err != nil {
		t.Fatalf("GraphWriter() failed: %v", err)
	}
	if err := w.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	page := &models.Page{
		URL:   "https://www.gamersky.com/handbook/201.html",
		Title: "Wukong_Boss Guide-GamerSky.com",
		Blocks: []models.Block{
			{Kind: models.BlockText, Text: "Wukong boss fight: dodge the staff sweep."},
		},
	}
	if err := w.WritePage(ctx, page, nil); err != nil {
		t.Fatalf("WritePage() failed: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       models.AppConfig
		quiet     bool
		wantInfo  bool
		wantDebug bool
	}{
		{"info json", models.AppConfig{LogLevel: "info", LogFormat: "json"}, false, true, false},
		{"debug json", models.AppConfig{LogLevel: "debug", LogFormat: "json"}, false, true, true},
		{"quiet overrides level", models.AppConfig{LogLevel: "debug", LogFormat: "json"}, true, false, false},
		{"text handler", models.AppConfig{LogLevel: "info", LogFormat: "text"}, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.cfg, tt.quiet)
			logger.Debug("debug line")
			logger.Info("info line")

			out := buf.String()
			if got := strings.Contains(out, "info line"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v (%q)", got, tt.wantInfo, out)
			}
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v (%q)", got, tt.wantDebug, out)
			}
		})
	}
}

func TestGraphIsShared(t *testing.T) {
	a := setupApp(t, testConfig(t))
	ctx := context.Background()

	first, err := a.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() failed: %v", err)
	}
	second, err := a.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() failed: %v", err)
	}
	if first != second {
		t.Error("Graph() opened the store twice")
	}
}

func TestSearchIndexUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.Backend = "elastic"
	a := setupApp(t, cfg)

	if _, err := a.SearchIndex(context.Background()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadedIndexBuildsFromGraph(t *testing.T) {
	a := setupApp(t, testConfig(t))
	seedGraph(t, a)

	idx, err := a.LoadedIndex(context.Background())
	if err != nil {
		t.Fatalf("LoadedIndex() failed: %v", err)
	}
	local, ok := idx.(*search.LocalIndex)
	if !ok {
		t.Fatalf("LoadedIndex() = %T, want *search.LocalIndex", idx)
	}
	if local.Len() != 1 {
		t.Errorf("Len() = %d, want 1", local.Len())
	}
}

func TestCrawlerRequiresValidLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Backend = "redis"
	a := setupApp(t, cfg)

	if _, err := a.Crawler(nil, nil); err == nil {
		t.Fatal("expected error for unknown ledger backend")
	}
}

func TestAssistantAnswersFromGraph(t *testing.T) {
	var prompt string
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		prompt = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Dodge \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"left.\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer llmServer.Close()

	cfg := testConfig(t)
	cfg.LLM.APIURL = llmServer.URL
	a := setupApp(t, cfg)
	seedGraph(t, a)

	assistant, err := a.Assistant(context.Background(), "")
	if err != nil {
		t.Fatalf("Assistant() failed: %v", err)
	}
	if assistant.Mode() != "graph" {
		t.Errorf("Mode() = %q, want graph", assistant.Mode())
	}

	got, err := assistant.Ask(context.Background(), "wukong boss")
	if err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}
	if got != "Dodge left." {
		t.Errorf("Ask() = %q, want %q", got, "Dodge left.")
	}
	if !strings.Contains(prompt, "https://www.gamersky.com/handbook/201.html") {
		t.Errorf("prompt does not carry the page url: %s", prompt)
	}
}

func TestAssistantUnknownMode(t *testing.T) {
	a := setupApp(t, testConfig(t))
	if _, err := a.Assistant(context.Background(), "verbose"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
