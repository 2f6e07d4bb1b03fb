package ledger

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

func TestStatsAndReset(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := models.NewDefaultConfig()
			cfg.SetDataDir(t.TempDir())
			cfg.Ledger.Backend = backend

			var out bytes.Buffer
			a := app.New(cfg, app.NewLogger(io.Discard, cfg.App, true))
			a.Out = &out
			t.Cleanup(func() { _ = a.Close() })

			l, err := a.Ledger()
			if err != nil {
				t.Fatalf("Ledger() failed: %v", err)
			}
			ctx := context.Background()
			for _, u := range []string{"https://a.com/1", "https://a.com/2"} {
				if _, err := l.AddCrawled(ctx, u); err != nil {
					t.Fatalf("AddCrawled() failed: %v", err)
				}
			}
			if _, err := l.AddLink(ctx, "https://a.com/1"); err != nil {
				t.Fatalf("AddLink() failed: %v", err)
			}

			run(t, a, Stats)
			if !strings.Contains(out.String(), "crawled: 2") || !strings.Contains(out.String(), "links: 1") {
				t.Errorf("stats output = %q", out.String())
			}

			run(t, a, Reset)
			out.Reset()
			run(t, a, Stats)
			if !strings.Contains(out.String(), "crawled: 0") {
				t.Errorf("stats after reset = %q", out.String())
			}
		})
	}
}
