package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/chat"
	"github.com/mccodeai/mmgamerag/internal/crawl"
	"github.com/mccodeai/mmgamerag/internal/graph"
	"github.com/mccodeai/mmgamerag/internal/index"
	"github.com/mccodeai/mmgamerag/internal/ledger"
	"github.com/mccodeai/mmgamerag/pkg/help"
)

func main() {
	app := &cli.App{
		Name:  "mmgamerag",
		Usage: "Crawl game walkthroughs into a graph and answer questions about them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				EnvVars: []string{"MMGAMERAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Keep ledger, page dumps, cache and the SQLite graph under this directory",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "quickstart",
				Usage: "Print a YAML quick start",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprint(c.App.Writer, help.QuickstartYAML)
					return err
				},
			},
			{
				Name:   "crawl",
				Usage:  "Crawl walkthrough pages from seeds or a keyword search",
				Flags:  crawl.Flags(),
				Action: crawl.CrawlAction,
			},
			{
				Name:  "graph",
				Usage: "Maintain the walkthrough graph",
				Subcommands: []*cli.Command{
					{
						Name:   "build",
						Usage:  "Build the graph from saved page dumps",
						Action: graph.BuildAction,
					},
					{
						Name:   "stats",
						Usage:  "Count nodes and relationships",
						Action: graph.StatsAction,
					},
					{
						Name:   "reset",
						Usage:  "Delete every node and relationship",
						Action: graph.ResetAction,
					},
				},
			},
			{
				Name:  "index",
				Usage: "Embed graph text and images into the search index",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Empty the index first",
					},
				},
				Action: index.IndexAction,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed walkthroughs",
				ArgsUsage: "QUESTION",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "graph or quick (default from config)",
					},
					&cli.BoolFlag{
						Name:  "formatted",
						Usage: "Print the final answer with images embedded instead of streaming",
					},
				},
				Action: chat.AskAction,
			},
			{
				Name:  "serve",
				Usage: "Serve the chat API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default from config)",
					},
				},
				Action: chat.ServeAction,
			},
			{
				Name:  "ledger",
				Usage: "Inspect or clear the crawl ledger",
				Subcommands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "Count crawled and linked URLs",
						Action: ledger.StatsAction,
					},
					{
						Name:   "reset",
						Usage:  "Forget every crawled URL",
						Action: ledger.ResetAction,
					},
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
