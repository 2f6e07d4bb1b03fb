package ledger

import (
	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/app"
)

func StatsAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return Stats(c, a)
}

func ResetAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return Reset(c, a)
}

// Stats prints how many URLs were crawled and how many were kept as links.
func Stats(c *cli.Context, a *app.App) error {
	l, err := a.Ledger()
	if err != nil {
		return err
	}
	stats, err := l.Stats(c.Context)
	if err != nil {
		return err
	}
	return a.Print(stats)
}

// Reset forgets every crawled URL so the next crawl starts fresh.
func Reset(c *cli.Context, a *app.App) error {
	l, err := a.Ledger()
	if err != nil {
		return err
	}
	if err := l.Reset(c.Context); err != nil {
		return err
	}
	a.Logger.Info("Ledger reset", "backend", a.Config.Ledger.Backend)
	return nil
}
