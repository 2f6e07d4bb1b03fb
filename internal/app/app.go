// Package app builds the long-lived components from configuration and owns
// their lifetimes for a single CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/answer"
	"github.com/mccodeai/mmgamerag/pkg/assembler"
	"github.com/mccodeai/mmgamerag/pkg/caching"
	"github.com/mccodeai/mmgamerag/pkg/chat"
	"github.com/mccodeai/mmgamerag/pkg/crawler"
	"github.com/mccodeai/mmgamerag/pkg/detector"
	"github.com/mccodeai/mmgamerag/pkg/fetcher"
	"github.com/mccodeai/mmgamerag/pkg/graph"
	"github.com/mccodeai/mmgamerag/pkg/ledger"
	"github.com/mccodeai/mmgamerag/pkg/llm"
	"github.com/mccodeai/mmgamerag/pkg/parser"
	"github.com/mccodeai/mmgamerag/pkg/search"
	"github.com/mccodeai/mmgamerag/pkg/status"
	"github.com/mccodeai/mmgamerag/pkg/storage"
)

// App lazily opens components and closes them in reverse order.
type App struct {
	Config *models.Config
	Logger *slog.Logger
	// Out receives command results. Logs go to the logger.
	Out io.Writer

	fetcher *fetcher.Fetcher
	ledger  ledger.Ledger
	graph   *graph.SQLStore
	index   search.Index
	closers []func() error
}

func New(cfg *models.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{Config: cfg, Logger: logger, Out: os.Stdout}
}

// FromCLI loads the --config file and sets up logging from the global flags.
func FromCLI(c *cli.Context) (*App, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("data-dir") {
		cfg.SetDataDir(c.String("data-dir"))
	}
	logger := NewLogger(os.Stderr, cfg.App, c.Bool("quiet"))
	slog.SetDefault(logger)
	return New(cfg, logger), nil
}

// Close releases everything opened through the App.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Print writes v to Out as YAML.
func (a *App) Print(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = a.Out.Write(data)
	return err
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Fetcher shares one HTTP client, rate limiter and cache between the crawler
// and the answer formatter.
func (a *App) Fetcher() (*fetcher.Fetcher, error) {
	if a.fetcher != nil {
		return a.fetcher, nil
	}
	cfg := a.Config.Crawl

	var cache *caching.Cache
	if cfg.CacheTTL > 0 {
		var err error
		cache, err = caching.NewCache(filepath.Join(a.Config.App.DataDir, "cache"), cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
	}

	a.fetcher = fetcher.NewFetcher(fetcher.Options{
		Timeout:           cfg.Timeout,
		UserAgent:         cfg.UserAgent,
		Retries:           cfg.Retries,
		RetryDelay:        cfg.RetryDelay,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Cache:             cache,
	})
	return a.fetcher, nil
}

func (a *App) Ledger() (ledger.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	cfg := a.Config.Ledger
	l, err := ledger.Open(cfg.Backend, cfg.Dir, cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	a.onClose(l.Close)
	a.ledger = l
	return l, nil
}

func (a *App) Storage() (*storage.Storage, error) {
	return storage.New(a.Config.Storage.Dir, a.Config.Ledger.LockTimeout)
}

// Graph opens the graph store once per App.
func (a *App) Graph(ctx context.Context) (*graph.SQLStore, error) {
	if a.graph != nil {
		return a.graph, nil
	}
	store, err := graph.Open(ctx, a.Config.Graph.Driver, a.Config.Graph.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	a.onClose(store.Close)
	a.graph = store
	return store, nil
}

func (a *App) GraphWriter(store graph.Store) (*graph.Writer, error) {
	cfg := a.Config.Graph
	return graph.NewWriter(store, graph.WriterOptions{
		SiteSuffixes: cfg.SiteSuffixes,
		PageMarker:   cfg.PageMarker,
		FirstPage:    cfg.FirstPage,
		Logger:       a.Logger,
	})
}

// Crawler wires the fetcher, parser, ledger and dump storage. sink may be nil.
func (a *App) Crawler(sink crawler.PageSink, st *status.Value) (*crawler.Crawler, error) {
	f, err := a.Fetcher()
	if err != nil {
		return nil, err
	}
	l, err := a.Ledger()
	if err != nil {
		return nil, err
	}
	s, err := a.Storage()
	if err != nil {
		return nil, err
	}
	cfg := a.Config.Crawl
	return crawler.New(crawler.Deps{
		Fetcher:  f,
		Parser:   parser.New(parser.Options{StopPhrases: cfg.StopPhrases, ThumbnailRules: cfg.ThumbnailRules}),
		Ledger:   l,
		Storage:  s,
		Detector: detector.NewLanguageDetector(),
		Sink:     sink,
		Status:   st,
		Logger:   a.Logger,
	}, crawler.Options{
		ContainerSelector:  cfg.ContainerSelector,
		AllowedDomains:     cfg.AllowedDomains,
		Workers:            cfg.Workers,
		SearchURL:          cfg.SearchURL,
		ImageContextWindow: cfg.ImageContextWindow,
	})
}

// SearchIndex opens the configured similarity index. The local index lives
// in memory and starts empty; see LoadedIndex.
func (a *App) SearchIndex(ctx context.Context) (search.Index, error) {
	if a.index != nil {
		return a.index, nil
	}
	cfg := a.Config.Search
	switch cfg.Backend {
	case "pgvector":
		embedder, err := llm.NewEmbeddingClient(a.Config.Embedding)
		if err != nil {
			return nil, err
		}
		store, err := search.OpenPGVectorStore(ctx, cfg.DSN, embedder, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		a.onClose(store.Close)
		a.index = store
	case "", "local":
		a.index = search.NewLocalIndex()
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
	return a.index, nil
}

// LoadedIndex returns an index ready to query. The local backend is filled
// from the graph's Text and Image nodes; pgvector is used as stored.
func (a *App) LoadedIndex(ctx context.Context) (search.Index, error) {
	idx, err := a.SearchIndex(ctx)
	if err != nil {
		return nil, err
	}
	local, ok := idx.(*search.LocalIndex)
	if !ok || local.Len() > 0 {
		return idx, nil
	}
	store, err := a.Graph(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := search.NewIndexer(store, idx, a.Logger).Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build local index: %w", err)
	}
	a.Logger.Info("Local index built", "texts", stats.Texts, "images", stats.Images)
	return idx, nil
}

// Assistant wires search, graph, LLM and answer formatting for mode.
// An empty mode uses the configured one.
func (a *App) Assistant(ctx context.Context, mode string) (*chat.Assistant, error) {
	store, err := a.Graph(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := a.LoadedIndex(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(a.Config.LLM)
	if err != nil {
		return nil, err
	}
	f, err := a.Fetcher()
	if err != nil {
		return nil, err
	}

	cfg := a.Config.Chat
	if mode == "" {
		mode = cfg.Mode
	}
	asm := assembler.New(idx, graph.NewReader(store), assembler.Options{
		K:           a.Config.Search.K,
		MaxSiblings: cfg.MaxSiblings,
		QuickK:      cfg.QuickK,
		Logger:      a.Logger,
	})
	return chat.New(chat.Deps{
		Context:   asm,
		Provider:  provider,
		Formatter: answer.New(f, a.Logger),
		Status:    status.NewValue(chat.StatusIdle),
		Logger:    a.Logger,
	}, chat.Options{
		Mode:            mode,
		SystemPrompt:    cfg.SystemPrompt,
		GraphPrompt:     cfg.GraphPrompt,
		QuickPrompt:     cfg.QuickPrompt,
		NoContentAnswer: cfg.NoContentAnswer,
	})
}
