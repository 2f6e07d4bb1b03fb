// Package crawler walks walkthrough pages breadth-first from seed URLs,
// following links from pages that mention the crawl keyword.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/mccodeai/mmgamerag/internal/common"
	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/apperr"
	"github.com/mccodeai/mmgamerag/pkg/discover"
	"github.com/mccodeai/mmgamerag/pkg/extractor"
	"github.com/mccodeai/mmgamerag/pkg/ledger"
	"github.com/mccodeai/mmgamerag/pkg/parser"
	"github.com/mccodeai/mmgamerag/pkg/status"
	"github.com/mccodeai/mmgamerag/pkg/storage"
)

// State is where a URL ended up in the per-page state machine:
// fetching -> parsed -> relevant|irrelevant -> extracted -> links_enumerated -> recursed.
type State string

const (
	StateFetching        State = "fetching"
	StateParsed          State = "parsed"
	StateRelevant        State = "relevant"
	StateIrrelevant      State = "irrelevant"
	StateExtracted       State = "extracted"
	StateLinksEnumerated State = "links_enumerated"
	StateRecursed        State = "recursed"
	StateFailed          State = "failed"
	StateParseFailed     State = "parse_failed"
	StateAlreadyVisited  State = "already_visited"
	StateCancelled       State = "cancelled"
)

// PageFetcher is the part of fetcher.Fetcher the crawler needs.
type PageFetcher interface {
	GetHtml(ctx context.Context, url string) (*goquery.Document, error)
}

// LanguageDetector tags extracted pages. Optional.
type LanguageDetector interface {
	DetectLanguage(text string) string
}

// PageSink receives every newly extracted page. Optional.
type PageSink interface {
	WritePage(ctx context.Context, page *models.Page, images []models.ImageContext) error
}

// Deps are the collaborators of a Crawler. Fetcher, Parser and Ledger are required.
type Deps struct {
	Fetcher  PageFetcher
	Parser   *parser.Parser
	Ledger   ledger.Ledger
	Storage  *storage.Storage
	Detector LanguageDetector
	Sink     PageSink
	Status   *status.Value
	Logger   *slog.Logger
}

// Options tune a crawl.
type Options struct {
	ContainerSelector  string
	AllowedDomains     []string
	Workers            int    // 0 means NumCPU-1
	SearchURL          string // template with a {keyword} placeholder
	ImageContextWindow int
}

type Crawler struct {
	deps Deps
	opts Options

	sinkMu sync.Mutex
}

// PageResult is the outcome for one (url, depth) task. State is the furthest
// state reached, or the terminal state that stopped the page.
type PageResult struct {
	URL       string `yaml:"url"`
	Depth     int    `yaml:"depth"`
	State     State  `yaml:"state"`
	Match     string `yaml:"match,omitempty"`
	Extracted bool   `yaml:"extracted,omitempty"`
	File      string `yaml:"file,omitempty"`
	Images    int    `yaml:"images,omitempty"`
	Links     int    `yaml:"links,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

// Result summarizes a crawl.
type Result struct {
	Seeds    []string
	Keyword  string
	MaxDepth int
	Started  time.Time
	Finished time.Time
	Pages    []PageResult
}

// Counts tallies pages per final state.
func (r *Result) Counts() map[State]int {
	counts := make(map[State]int)
	for _, p := range r.Pages {
		counts[p.State]++
	}
	return counts
}

// Extracted is the number of pages whose content was written.
func (r *Result) Extracted() int {
	n := 0
	for _, p := range r.Pages {
		if p.Extracted {
			n++
		}
	}
	return n
}

// Failures returns the failed pages.
func (r *Result) Failures() []PageResult {
	var out []PageResult
	for _, p := range r.Pages {
		if p.State == StateFailed || p.State == StateParseFailed {
			out = append(out, p)
		}
	}
	return out
}

func New(deps Deps, opts Options) (*Crawler, error) {
	if deps.Fetcher == nil || deps.Parser == nil || deps.Ledger == nil {
		return nil, errors.New("crawler requires a fetcher, a parser and a ledger")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Status == nil {
		deps.Status = status.NewValue("idle")
	}
	if opts.Workers <= 0 {
		opts.Workers = max(runtime.NumCPU()-1, 1)
	}
	if opts.ImageContextWindow <= 0 {
		opts.ImageContextWindow = extractor.DefaultWindow
	}
	return &Crawler{deps: deps, opts: opts}, nil
}

// Status exposes the crawl's progress value.
func (c *Crawler) Status() *status.Value {
	return c.deps.Status
}

// SearchSeed fills the search URL template with the escaped keyword.
func (c *Crawler) SearchSeed(keyword string) (string, error) {
	if c.opts.SearchURL == "" {
		return "", errors.New("no search url configured")
	}
	if !strings.Contains(c.opts.SearchURL, "{keyword}") {
		return "", fmt.Errorf("search url %q has no {keyword} placeholder", c.opts.SearchURL)
	}
	return strings.ReplaceAll(c.opts.SearchURL, "{keyword}", url.QueryEscape(keyword)), nil
}

// CrawlKeyword seeds the crawl from the site's search page for keyword.
func (c *Crawler) CrawlKeyword(ctx context.Context, keyword string, maxDepth int) (*Result, error) {
	seed, err := c.SearchSeed(keyword)
	if err != nil {
		return nil, err
	}
	return c.CrawlSeeds(ctx, []string{seed}, keyword, maxDepth)
}

// Crawl walks from one seed.
func (c *Crawler) Crawl(ctx context.Context, seedURL, keyword string, maxDepth int) (*Result, error) {
	return c.CrawlSeeds(ctx, []string{seedURL}, keyword, maxDepth)
}

type task struct {
	url   string
	depth int
}

// CrawlSeeds processes the queue level by level: every task at depth d is
// finished before any task at depth d+1 starts. Seeds are at depth 1. On
// cancellation the partial result is returned with ctx.Err().
func (c *Crawler) CrawlSeeds(ctx context.Context, seeds []string, keyword string, maxDepth int) (*Result, error) {
	if maxDepth < 1 {
		return nil, fmt.Errorf("max depth must be at least 1, got %d", maxDepth)
	}
	logger := c.deps.Logger
	disc := discover.New(keyword, c.opts.ContainerSelector, c.opts.AllowedDomains)
	result := &Result{Seeds: seeds, Keyword: keyword, MaxDepth: maxDepth, Started: time.Now()}

	visited := make(map[string]int)
	var frontier []task
	for _, s := range seeds {
		key := common.NormalizeURL(s)
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = 1
		frontier = append(frontier, task{url: s, depth: 1})
	}

	logger.Info("Starting crawl", "seeds", len(frontier), "keyword", keyword, "max_depth", maxDepth, "workers", c.opts.Workers)

	level := 0
	for len(frontier) > 0 {
		if ctx.Err() != nil {
			break
		}
		level++
		frontierSize.Set(float64(len(frontier)))
		c.deps.Status.Set(fmt.Sprintf("crawling level %d: %d pages", level, len(frontier)))

		results := make([]PageResult, len(frontier))
		children := make([][]task, len(frontier))

		var g errgroup.Group
		g.SetLimit(c.opts.Workers)
		for i, t := range frontier {
			g.Go(func() error {
				if ctx.Err() != nil {
					results[i] = PageResult{URL: t.url, Depth: t.depth, State: StateCancelled, Error: ctx.Err().Error()}
					return nil
				}
				results[i], children[i] = c.process(ctx, disc, t, maxDepth)
				return nil
			})
		}
		_ = g.Wait()

		var next []task
		for i := range frontier {
			pagesTotal.WithLabelValues(string(results[i].State)).Inc()
			result.Pages = append(result.Pages, results[i])
			for _, child := range children[i] {
				key := common.NormalizeURL(child.url)
				if d, ok := visited[key]; ok && d <= child.depth {
					continue
				}
				visited[key] = child.depth
				next = append(next, child)
			}
		}
		frontier = next
	}

	frontierSize.Set(0)
	result.Finished = time.Now()
	c.deps.Status.Set("crawl finished")
	logger.Info("Crawl finished", "pages", len(result.Pages), "extracted", result.Extracted(), "failed", len(result.Failures()), "duration", result.Finished.Sub(result.Started).String())

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// process runs one task through the state machine and returns the links to
// follow.
func (c *Crawler) process(ctx context.Context, disc *discover.Discoverer, t task, maxDepth int) (PageResult, []task) {
	logger := c.deps.Logger.With("url", t.url, "depth", t.depth)
	res := PageResult{URL: t.url, Depth: t.depth, State: StateFetching}

	fail := func(state State, err error) (PageResult, []task) {
		res.State = state
		res.Error = err.Error()
		logger.Warn("Page failed", "state", state, "error", err)
		return res, nil
	}

	// A leaf already crawled in an earlier run has nothing left to give.
	if t.depth >= maxDepth {
		crawled, err := c.deps.Ledger.HasCrawled(ctx, t.url)
		if err != nil {
			return fail(StateFailed, err)
		}
		if crawled {
			res.State = StateAlreadyVisited
			logger.Debug("Skipping crawled page")
			return res, nil
		}
	}

	doc, err := c.deps.Fetcher.GetHtml(ctx, t.url)
	if err != nil {
		if errors.Is(err, apperr.ErrParse) {
			return fail(StateParseFailed, err)
		}
		return fail(StateFailed, err)
	}
	res.State = StateParsed

	match := disc.Inspect(doc, t.url)
	res.Match = match.Match.String()
	if !match.Relevant() {
		if _, err := c.deps.Ledger.AddCrawled(ctx, t.url); err != nil {
			return fail(StateFailed, err)
		}
		res.State = StateIrrelevant
		logger.Debug("Page not relevant")
		return res, nil
	}
	res.State = StateRelevant

	depth := t.depth
	if match.Match == discover.MatchFallback {
		// Index-style pages restart the depth budget.
		depth = 1
	}

	written, err := c.extractOnce(ctx, doc, &res, logger)
	if err != nil {
		return fail(StateFailed, err)
	}
	// A page whose content could not be written stays uncrawled so a later
	// run visits it again even as a leaf.
	if written {
		if _, err := c.deps.Ledger.AddCrawled(ctx, t.url); err != nil {
			return fail(StateFailed, err)
		}
	}

	res.Links = len(match.Links)
	res.State = StateLinksEnumerated
	if depth >= maxDepth || len(match.Links) == 0 {
		logger.Info("Page processed", "state", res.State, "match", res.Match, "extracted", res.Extracted, "links", res.Links)
		return res, nil
	}

	children := make([]task, 0, len(match.Links))
	for _, link := range match.Links {
		children = append(children, task{url: link, depth: depth + 1})
	}
	res.State = StateRecursed
	logger.Info("Page processed", "state", res.State, "match", res.Match, "extracted", res.Extracted, "links", res.Links)
	return res, children
}

// extractOnce writes the page unless the ledger already has it as a link
// and its dump is still on disk. The link is recorded only after the
// content was written. It reports whether the page's content is in place.
func (c *Crawler) extractOnce(ctx context.Context, doc *goquery.Document, res *PageResult, logger *slog.Logger) (bool, error) {
	done, err := c.deps.Ledger.HasLink(ctx, res.URL)
	if err != nil {
		return false, err
	}
	if done && (c.deps.Storage == nil || c.deps.Storage.HasPage(res.URL)) {
		return true, nil
	}

	if err := c.extract(ctx, doc, res); err != nil {
		if !errors.Is(err, apperr.ErrMissingContainer) {
			logger.Warn("Extraction failed", "error", err)
			if e, ok := c.deps.Fetcher.(cacheEvicter); ok {
				_ = e.Forget(res.URL)
			}
			return false, nil
		}
		logger.Debug("No content container, skipping extraction", "error", err)
	}
	if _, err := c.deps.Ledger.AddLink(ctx, res.URL); err != nil {
		return false, err
	}
	return true, nil
}

// cacheEvicter is implemented by fetchers with a body cache. A page that
// failed to extract is dropped so the next run fetches it fresh.
type cacheEvicter interface {
	Forget(url string) error
}

// extract persists the page's content: dumps, image contexts and the sink.
func (c *Crawler) extract(ctx context.Context, doc *goquery.Document, res *PageResult) error {
	page, err := c.deps.Parser.Extract(doc, res.URL, c.opts.ContainerSelector)
	if err != nil {
		return err
	}
	if c.deps.Detector != nil {
		page.Language = c.deps.Detector.DetectLanguage(page.PlainText())
	}
	contexts := extractor.ImageContexts(page, c.opts.ImageContextWindow)

	if c.deps.Storage != nil {
		name, err := c.deps.Storage.SavePage(page)
		if err != nil {
			return err
		}
		res.File = name
		if err := c.deps.Storage.AppendImageContexts(ctx, contexts); err != nil {
			return err
		}
	}
	if c.deps.Sink != nil {
		c.sinkMu.Lock()
		err := c.deps.Sink.WritePage(ctx, page, contexts)
		c.sinkMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to write page to sink: %w", err)
		}
	}

	res.Extracted = true
	res.Images = len(contexts)
	res.State = StateExtracted
	pagesExtracted.Inc()
	return nil
}
