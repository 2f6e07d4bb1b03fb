package crawl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mccodeai/mmgamerag/internal/app"
	"github.com/mccodeai/mmgamerag/internal/common"
	"github.com/mccodeai/mmgamerag/pkg/analytics"
	"github.com/mccodeai/mmgamerag/pkg/crawler"
	"github.com/mccodeai/mmgamerag/pkg/manifest"
	"github.com/mccodeai/mmgamerag/pkg/mapreduce"
	"github.com/mccodeai/mmgamerag/pkg/status"
)

// Summary is printed after a crawl.
type Summary struct {
	SessionID string                `yaml:"session_id"`
	Keyword   string                `yaml:"keyword,omitempty"`
	Seeds     []string              `yaml:"seeds"`
	MaxDepth  int                   `yaml:"max_depth"`
	Pages     int                   `yaml:"pages"`
	Extracted int                   `yaml:"extracted"`
	Failed    int                   `yaml:"failed"`
	Counts    map[string]int        `yaml:"counts"`
	Manifest  string                `yaml:"manifest"`
	Graph     bool                  `yaml:"graph"`
	TopTerms  []mapreduce.TermCount `yaml:"top_terms,omitempty"`
}

const topTerms = 10

// Flags are the crawl command's flags.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "seed",
			Usage: "Seed URL (repeatable). Overrides crawl.seeds",
		},
		&cli.StringFlag{
			Name:    "keyword",
			Aliases: []string{"k"},
			Usage:   "Relevance keyword. Without --seed the site search page is the seed",
		},
		&cli.IntFlag{
			Name:  "depth",
			Usage: "Maximum crawl depth (seeds are depth 1)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent page workers (0 = CPUs - 1)",
		},
		&cli.BoolFlag{
			Name:  "graph",
			Usage: "Write extracted pages into the graph as they are crawled",
		},
	}
}

func CrawlAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return Run(c, a)
}

// Run crawls with flags layered over a's configuration.
func Run(c *cli.Context, a *app.App) error {
	cfg := a.Config.Crawl
	logger := a.Logger

	if c.IsSet("depth") {
		cfg.MaxDepth = c.Int("depth")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("keyword") {
		cfg.Keyword = c.String("keyword")
	}
	a.Config.Crawl = cfg

	rawSeeds := cfg.Seeds
	if c.IsSet("seed") {
		rawSeeds = c.StringSlice("seed")
	}
	seeds, invalid := common.SanitizeAndValidateURLs(rawSeeds)
	if len(invalid) > 0 {
		return fmt.Errorf("%d seed URL(s) are malformed: %s", len(invalid), strings.Join(invalid, ", "))
	}
	if len(seeds) == 0 && cfg.Keyword == "" {
		return errors.New("either --seed or --keyword is required")
	}

	var sink crawler.PageSink
	if c.Bool("graph") {
		store, err := a.Graph(c.Context)
		if err != nil {
			return err
		}
		w, err := a.GraphWriter(store)
		if err != nil {
			return err
		}
		if err := w.Init(c.Context); err != nil {
			return fmt.Errorf("failed to initialize graph: %w", err)
		}
		sink = w
	}

	st := status.NewValue("idle")
	unsubscribe := st.Subscribe(func(_, s string) {
		logger.Debug("Crawl status", "status", s)
	})
	defer unsubscribe()

	cr, err := a.Crawler(sink, st)
	if err != nil {
		return err
	}

	var res *crawler.Result
	if len(seeds) > 0 {
		res, err = cr.CrawlSeeds(c.Context, seeds, cfg.Keyword, cfg.MaxDepth)
	} else {
		res, err = cr.CrawlKeyword(c.Context, cfg.Keyword, cfg.MaxDepth)
	}
	if res == nil {
		return err
	}
	if err != nil {
		logger.Warn("Crawl interrupted, writing partial manifest", "error", err)
	}

	sessionID := manifest.GenerateSessionID(res.Seeds, res.Keyword, res.Started)
	path, werr := manifest.New(sessionID, res).Write(a.Config.App.DataDir)
	if werr != nil {
		return werr
	}

	termCounts, terr := pageTerms(a, res)
	if terr != nil {
		logger.Warn("Failed to read page dumps for term counts", "error", terr)
	}

	counts := make(map[string]int)
	for state, n := range res.Counts() {
		counts[string(state)] = n
	}
	logger.Info("Crawl complete", "session_id", sessionID, "pages", len(res.Pages), "extracted", res.Extracted())
	if perr := a.Print(Summary{
		SessionID: sessionID,
		Keyword:   res.Keyword,
		Seeds:     res.Seeds,
		MaxDepth:  res.MaxDepth,
		Pages:     len(res.Pages),
		Extracted: res.Extracted(),
		Failed:    len(res.Failures()),
		Counts:    counts,
		Manifest:  path,
		Graph:     sink != nil,
		TopTerms:  mapreduce.Top(mapreduce.Reduce(termCounts), topTerms),
	}); perr != nil {
		return perr
	}
	return err
}

// pageTerms maps every page extracted by the crawl to its term counts.
func pageTerms(a *app.App, res *crawler.Result) ([]map[string]int, error) {
	st, err := a.Storage()
	if err != nil {
		return nil, err
	}
	an := &analytics.Analytics{}
	var out []map[string]int
	for _, p := range res.Pages {
		if !p.Extracted || p.File == "" {
			continue
		}
		content, err := st.ReadPage(p.File)
		if err != nil {
			return out, err
		}
		out = append(out, mapreduce.Map(content, an))
	}
	return out, nil
}
