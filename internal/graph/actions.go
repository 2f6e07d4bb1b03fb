package graph

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/app"
)

// BuildAction rebuilds the graph from the page dumps and the image-context
// side file written by earlier crawls.
func BuildAction(c *cli.Context) error {
	return withApp(c, Build)
}

func StatsAction(c *cli.Context) error {
	return withApp(c, Stats)
}

func ResetAction(c *cli.Context) error {
	return withApp(c, Reset)
}

func withApp(c *cli.Context, fn func(*cli.Context, *app.App) error) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(c, a)
}

func Build(c *cli.Context, a *app.App) error {
	store, err := a.Graph(c.Context)
	if err != nil {
		return err
	}
	st, err := a.Storage()
	if err != nil {
		return err
	}
	w, err := a.GraphWriter(store)
	if err != nil {
		return err
	}

	stats, err := w.BuildFromDumps(c.Context, st)
	if err != nil {
		return fmt.Errorf("graph build failed: %w", err)
	}
	a.Logger.Info("Graph built", "pages", stats.Pages, "images", stats.Images, "orphan_images", stats.OrphanImages)
	return a.Print(stats)
}

func Stats(c *cli.Context, a *app.App) error {
	store, err := a.Graph(c.Context)
	if err != nil {
		return err
	}
	stats, err := store.Stats(c.Context)
	if err != nil {
		return err
	}
	return a.Print(stats)
}

func Reset(c *cli.Context, a *app.App) error {
	store, err := a.Graph(c.Context)
	if err != nil {
		return err
	}
	if err := store.Reset(c.Context); err != nil {
		return err
	}
	a.Logger.Info("Graph reset")
	return nil
}
