package graph

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/app"
	"github.com/mccodeai/mmgamerag/models"
)

func setupApp(t *testing.T) (*app.App, *bytes.Buffer) {
	t.Helper()
	cfg := models.NewDefaultConfig()
	cfg.SetDataDir(t.TempDir())
	cfg.Graph.SiteSuffixes = []string{"-GamerSky.com"}

	var out bytes.Buffer
	a := app.New(cfg, app.NewLogger(io.Discard, cfg.App, true))
	a.Out = &out
	t.Cleanup(func() { _ = a.Close() })
	return a, &out
}

func run(t *testing.T, a *app.App, fn func(*cli.Context, *app.App) error) {
	t.Helper()
	cliApp := &cli.App{
		Name: "test",
		Action: func(c *cli.Context) error {
			return fn(c, a)
		},
	}
	if err := cliApp.RunContext(context.Background(), []string{"test"}); err != nil {
		t.Fatalf("command failed: %v", err)
	}
}

func TestBuildStatsReset(t *testing.T) {
	a, out := setupApp(t)

	st, err := a.Storage()
	if err != nil {
		t.Fatalf("Storage() failed: %v", err)
	}
	page := &models.Page{
		URL:    "https://www.gamersky.com/handbook/301.html",
		Title:  "Wukong_Boss-GamerSky.com",
		Blocks: []models.Block{{Kind: models.BlockText, Text: "Boss one."}},
	}
	if _, err := st.SavePage(page); err != nil {
		t.Fatalf("SavePage() failed: %v", err)
	}

	run(t, a, Build)
	if !strings.Contains(out.String(), "pages: 1") {
		t.Errorf("build output = %q, want pages: 1", out.String())
	}

	out.Reset()
	run(t, a, Stats)
	for _, want := range []string{"Title: 1", "txt: 1", "HAS_TXT: 1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stats output missing %q:\n%s", want, out.String())
		}
	}

	run(t, a, Reset)
	out.Reset()
	run(t, a, Stats)
	if strings.Contains(out.String(), "txt: 1") {
		t.Errorf("graph not empty after reset:\n%s", out.String())
	}
}
