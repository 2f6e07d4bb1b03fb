package index

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/app"
	"github.com/mccodeai/mmgamerag/pkg/llm"
	"github.com/mccodeai/mmgamerag/pkg/search"
)

func IndexAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return Run(c, a)
}

// Run embeds every Text and Image node of the graph into the search index.
// With --reset the index is emptied first.
func Run(c *cli.Context, a *app.App) error {
	ctx := c.Context
	store, err := a.Graph(ctx)
	if err != nil {
		return err
	}
	idx, err := a.SearchIndex(ctx)
	if err != nil {
		return err
	}

	if pg, ok := idx.(*search.PGVectorStore); ok {
		embedder, err := llm.NewEmbeddingClient(a.Config.Embedding)
		if err != nil {
			return err
		}
		dims, err := llm.ProbeEmbeddingDimensions(ctx, embedder)
		if err != nil {
			return fmt.Errorf("failed to probe embedding dimensions: %w", err)
		}
		if err := pg.EnsureSchema(ctx, dims); err != nil {
			return err
		}
	}
	if c.Bool("reset") {
		if err := idx.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
	}

	stats, err := search.NewIndexer(store, idx, a.Logger).Index(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	a.Logger.Info("Index built", "backend", a.Config.Search.Backend, "texts", stats.Texts, "images", stats.Images)
	return a.Print(stats)
}
