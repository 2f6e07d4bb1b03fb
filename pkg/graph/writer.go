package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mccodeai/mmgamerag/internal/common"
	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/apperr"
	"github.com/mccodeai/mmgamerag/pkg/detector"
	"github.com/mccodeai/mmgamerag/pkg/storage"
)

const defaultFirstPage = "page 1"

// WriterOptions control how page dumps are turned into Title and Subtitle names.
type WriterOptions struct {
	// SiteSuffixes are stripped from the title line, e.g. "-GamerSky.com".
	SiteSuffixes []string
	// PageMarker matches a second dump line that names the page of a series.
	PageMarker string
	// FirstPage names pages without a marker line.
	FirstPage string
	Logger    *slog.Logger
}

// BuildStats summarizes a graph build.
type BuildStats struct {
	Pages        int `yaml:"pages"`
	Images       int `yaml:"images"`
	OrphanImages int `yaml:"orphan_images"`
	OrphanEdges  int `yaml:"orphan_edges"`
	Skipped      int `yaml:"skipped"`
}

func (s *BuildStats) add(o BuildStats) {
	s.Pages += o.Pages
	s.Images += o.Images
	s.OrphanImages += o.OrphanImages
	s.OrphanEdges += o.OrphanEdges
	s.Skipped += o.Skipped
}

// Writer writes crawled pages into the graph.
type Writer struct {
	store     Store
	suffixes  []string
	marker    *regexp.Regexp
	firstPage string
	logger    *slog.Logger
}

func NewWriter(store Store, opts WriterOptions) (*Writer, error) {
	w := &Writer{
		store:     store,
		suffixes:  opts.SiteSuffixes,
		firstPage: opts.FirstPage,
		logger:    opts.Logger,
	}
	if w.firstPage == "" {
		w.firstPage = defaultFirstPage
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if opts.PageMarker != "" {
		re, err := regexp.Compile(opts.PageMarker)
		if err != nil {
			return nil, fmt.Errorf("invalid page marker: %w", err)
		}
		w.marker = re
	}
	return w, nil
}

// Init creates the fixed Category nodes.
func (w *Writer) Init(ctx context.Context) error {
	for _, name := range models.Categories {
		if _, err := w.store.UpsertNode(ctx, models.Category{Name: name}); err != nil {
			return err
		}
	}
	return nil
}

// ParseDump derives the Title and Subtitle of a page from its dump. The first
// line carries the title; a second line matching the page marker names the
// Subtitle.
func (w *Writer) ParseDump(pageURL, content string) (models.Title, models.Subtitle) {
	lines := strings.SplitN(content, "\n", 3)

	name := strings.TrimSpace(lines[0])
	if rest, ok := strings.CutPrefix(name, strings.TrimSpace(models.TitleLinePrefix)); ok {
		name = rest
	}
	for _, suffix := range w.suffixes {
		name = strings.ReplaceAll(name, suffix, "")
	}
	name = strings.TrimSpace(strings.Split(name, "_")[0])
	if name == "" {
		name = pageURL
	}

	sub := w.firstPage
	if len(lines) > 1 && w.marker != nil {
		second := strings.TrimSpace(lines[1])
		if w.marker.MatchString(second) {
			sub = second
		}
	}
	return models.Title{Name: name}, models.Subtitle{Name: sub, PageURL: pageURL}
}

// Upsert writes one page with its chain of relationships. It is idempotent.
// Orphaned relationships are logged and counted; other store errors are
// returned.
func (w *Writer) Upsert(ctx context.Context, category string, title models.Title, subtitle models.Subtitle, text models.TextBlock, images []models.ImageRecord) (BuildStats, error) {
	var stats BuildStats

	for _, e := range []models.Entity{models.Category{Name: category}, title, subtitle, text} {
		if _, err := w.store.UpsertNode(ctx, e); err != nil {
			return stats, err
		}
		nodesUpserted.WithLabelValues(string(e.Kind())).Inc()
	}

	edges := []Edge{
		{Rel: models.RelHasTitle, FromKey: category, ToKey: title.Key()},
		{Rel: models.RelHasSubtitle, FromKey: title.Key(), ToKey: subtitle.Key()},
		{Rel: models.RelHasText, FromKey: subtitle.Key(), ToKey: text.Key()},
	}
	for _, e := range edges {
		if err := w.edge(ctx, e, &stats); err != nil {
			return stats, err
		}
	}

	for _, img := range images {
		if _, err := w.store.UpsertNode(ctx, img); err != nil {
			return stats, err
		}
		nodesUpserted.WithLabelValues(string(models.KindImage)).Inc()
		if err := w.edge(ctx, Edge{Rel: models.RelHasImage, FromKey: subtitle.Key(), ToKey: img.Key()}, &stats); err != nil {
			return stats, err
		}
		stats.Images++
	}
	stats.Pages++
	return stats, nil
}

func (w *Writer) edge(ctx context.Context, e Edge, stats *BuildStats) error {
	err := w.store.UpsertEdge(ctx, e)
	if errors.Is(err, apperr.ErrOrphanRelationship) {
		w.logger.Warn("Skipping orphan relationship", "rel", e.Rel, "from", e.FromKey, "to", e.ToKey)
		orphansTotal.WithLabelValues("edge").Inc()
		stats.OrphanEdges++
		return nil
	}
	return err
}

// WritePage stores a freshly extracted page and its image contexts. It lets
// the crawler fill the graph while crawling.
func (w *Writer) WritePage(ctx context.Context, page *models.Page, images []models.ImageContext) error {
	pageURL := common.NormalizeURL(page.URL)
	content := page.TextWithImages()
	title, subtitle := w.ParseDump(pageURL, content)
	text := models.TextBlock{PageURL: pageURL, Content: content, Language: page.Language}

	stats, err := w.Upsert(ctx, detector.DetermineCategory(pageURL), title, subtitle, text, nil)
	if err != nil {
		return err
	}
	imgStats, err := w.AttachImages(ctx, images)
	if err != nil {
		return err
	}
	stats.add(imgStats)
	w.logger.Debug("Page written to graph", "url", pageURL, "title", title.Name, "images", stats.Images, "orphan_images", stats.OrphanImages)
	return nil
}

// AttachImages links image contexts to the Subtitle of their owning page.
// Images whose page has no Subtitle are dropped and counted.
func (w *Writer) AttachImages(ctx context.Context, records []models.ImageContext) (BuildStats, error) {
	var stats BuildStats
	for _, rec := range records {
		if rec.Src == "" || rec.URL == "" {
			stats.Skipped++
			continue
		}
		pageURL := common.NormalizeURL(rec.URL)
		id, err := w.store.FindNode(ctx, models.KindSubtitle, pageURL)
		if err != nil {
			return stats, err
		}
		if id == "" {
			w.logger.Debug("No subtitle for image", "src", rec.Src, "url", pageURL)
			orphansTotal.WithLabelValues("image").Inc()
			stats.OrphanImages++
			continue
		}

		img := models.ImageRecord{Src: rec.Src, AggregatedContent: rec.Aggregate(), URL: rec.URL}
		if _, err := w.store.UpsertNode(ctx, img); err != nil {
			return stats, err
		}
		nodesUpserted.WithLabelValues(string(models.KindImage)).Inc()
		if err := w.edge(ctx, Edge{Rel: models.RelHasImage, FromKey: pageURL, ToKey: img.Src}, &stats); err != nil {
			return stats, err
		}
		stats.Images++
	}
	return stats, nil
}

// BuildFromDumps rebuilds the graph from the page dumps and the image-context
// side file of st. Pages go first so every image can find its Subtitle.
func (w *Writer) BuildFromDumps(ctx context.Context, st *storage.Storage) (BuildStats, error) {
	var stats BuildStats
	if err := w.Init(ctx); err != nil {
		return stats, err
	}

	names, err := st.ListPages()
	if err != nil {
		return stats, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		content, err := st.ReadPage(name)
		if err != nil {
			w.logger.Warn("Skipping unreadable dump", "file", name, "error", err)
			stats.Skipped++
			continue
		}
		if strings.TrimSpace(content) == "" {
			stats.Skipped++
			continue
		}

		pageURL := storage.URLFromFileName(name)
		var language string
		if meta, err := st.ReadMeta(name); err == nil {
			if meta.URL != "" {
				pageURL = meta.URL
			}
			language = meta.Language
		}

		title, subtitle := w.ParseDump(pageURL, content)
		text := models.TextBlock{PageURL: pageURL, Content: content, Language: language}
		pageStats, err := w.Upsert(ctx, detector.DetermineCategory(pageURL), title, subtitle, text, nil)
		if err != nil {
			return stats, fmt.Errorf("failed to write %s: %w", name, err)
		}
		stats.add(pageStats)
	}
	w.logger.Info("Pages written to graph", "pages", stats.Pages, "skipped", stats.Skipped)

	records, err := st.ReadImageContexts()
	if err != nil {
		return stats, err
	}
	imgStats, err := w.AttachImages(ctx, records)
	stats.add(imgStats)
	if err != nil {
		return stats, err
	}
	w.logger.Info("Images attached to graph", "images", imgStats.Images, "orphan_images", imgStats.OrphanImages)
	return stats, nil
}
