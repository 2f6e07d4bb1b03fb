// Package assembler turns search hits into prompt context, rebuilding whole
// walkthrough series from the graph.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/graph"
	"github.com/mccodeai/mmgamerag/pkg/search"
	"github.com/mccodeai/mmgamerag/pkg/storage"
)

const (
	// Divider separates Titles in the assembled context.
	Divider = "-------------"

	DefaultK           = 4
	DefaultMaxSiblings = 16
	DefaultQuickK      = 5
)

type Options struct {
	// K is the number of text matches to expand.
	K int
	// MaxSiblings caps the Subtitles emitted per Title; 0 means no cap.
	MaxSiblings int
	// QuickK is the number of text and image matches in quick mode.
	QuickK int
	Logger *slog.Logger
}

type Assembler struct {
	searcher search.Searcher
	reader   *graph.Reader
	opts     Options
	logger   *slog.Logger
}

func New(searcher search.Searcher, reader *graph.Reader, opts Options) *Assembler {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.MaxSiblings < 0 {
		opts.MaxSiblings = DefaultMaxSiblings
	}
	if opts.QuickK <= 0 {
		opts.QuickK = DefaultQuickK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{searcher: searcher, reader: reader, opts: opts, logger: logger}
}

// AssembleContext searches for the question and expands every matched page to
// its whole series: Text -> Subtitle -> Title -> all Subtitles -> their Text.
// A Title reached by several matches is emitted once. It returns "" when
// nothing matches.
func (a *Assembler) AssembleContext(ctx context.Context, question string) (string, error) {
	matches, err := a.searcher.Search(ctx, question, a.opts.K, search.Filter{Type: search.TypeText})
	if err != nil {
		return "", fmt.Errorf("similarity search: %w", err)
	}

	var sections []string
	seen := make(map[string]bool)
	for _, m := range matches {
		section, titleID, err := a.expand(ctx, m, seen)
		if err != nil {
			return "", err
		}
		if section == "" {
			continue
		}
		seen[titleID] = true
		sections = append(sections, section)
	}
	if len(sections) == 0 {
		return "", nil
	}

	out := []string{Divider}
	for _, s := range sections {
		out = append(out, s, Divider)
	}
	return strings.Join(out, "\n"), nil
}

func (a *Assembler) expand(ctx context.Context, m search.Match, seen map[string]bool) (string, string, error) {
	logger := a.logger.With("node", m.Metadata.NodeID)

	sub, err := a.reader.SubtitleOfText(ctx, m.Metadata.NodeID)
	if err != nil {
		return "", "", err
	}
	if sub == nil {
		logger.Warn("Skipping match without subtitle")
		return "", "", nil
	}
	title, err := a.reader.TitleOfSubtitle(ctx, sub.ID)
	if err != nil {
		return "", "", err
	}
	if title == nil {
		logger.Warn("Skipping match without title", "subtitle", sub.Key)
		return "", "", nil
	}
	if seen[title.ID] {
		return "", "", nil
	}

	siblings, err := a.reader.SubtitlesOfTitle(ctx, title.ID)
	if err != nil {
		return "", "", err
	}
	siblings = window(siblings, sub.ID, a.opts.MaxSiblings)

	lines := []string{models.TitleLinePrefix + models.TitleFromProperties(title.Props).Name}
	for _, s := range siblings {
		text, err := a.reader.TextOfSubtitle(ctx, s.ID)
		if err != nil {
			return "", "", err
		}
		if text == nil {
			logger.Debug("Subtitle has no text", "subtitle", s.Key)
			continue
		}
		tb := models.TextBlockFromProperties(text.Props)
		lines = append(lines,
			" SubTitle: "+models.SubtitleFromProperties(s.Props).Name,
			" Subtitle_page_url: "+displayURL(tb.PageURL),
			" Subtitle_content: "+tb.Content+"\n",
		)
		images, err := a.linkedImages(ctx, s.ID, tb.Content)
		if err != nil {
			return "", "", err
		}
		lines = append(lines, images...)
	}
	return strings.Join(lines, "\n"), title.ID, nil
}

// linkedImages renders the images attached to a Subtitle that its text does
// not already show inline, such as images linking to the page from elsewhere.
func (a *Assembler) linkedImages(ctx context.Context, subtitleID, content string) ([]string, error) {
	nodes, err := a.reader.ImagesOfSubtitle(ctx, subtitleID)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, n := range nodes {
		img := models.ImageRecordFromProperties(n.Props)
		markup := models.ImageRef{Src: img.Src}.Markup()
		if img.Src == "" || strings.Contains(content, markup) {
			continue
		}
		lines = append(lines, " Subtitle_image: "+markup+"\n"+img.AggregatedContent+"\n")
	}
	return lines, nil
}

// window keeps at most limit nodes around the one with id, preserving order.
func window(nodes []graph.Node, id string, limit int) []graph.Node {
	if limit <= 0 || len(nodes) <= limit {
		return nodes
	}
	pos := 0
	for i, n := range nodes {
		if n.ID == id {
			pos = i
			break
		}
	}
	start := pos - limit/2
	if start < 0 {
		start = 0
	}
	if start+limit > len(nodes) {
		start = len(nodes) - limit
	}
	return nodes[start : start+limit]
}

// displayURL turns a stored page key back into a URL. Keys written from dump
// file names still carry the file name encoding.
func displayURL(pageURL string) string {
	if strings.HasSuffix(pageURL, storage.PageSuffix) {
		return storage.URLFromFileName(pageURL)
	}
	return pageURL
}

// QuickContext runs separate text and image searches and formats them as
// numbered entries, without walking the graph.
func (a *Assembler) QuickContext(ctx context.Context, question string) (string, string, error) {
	texts, err := a.searcher.Search(ctx, question, a.opts.QuickK, search.Filter{Type: search.TypeText})
	if err != nil {
		return "", "", fmt.Errorf("text search: %w", err)
	}
	images, err := a.searcher.Search(ctx, question, a.opts.QuickK, search.Filter{Type: search.TypeImage})
	if err != nil {
		return "", "", fmt.Errorf("image search: %w", err)
	}
	return formatMatches(texts), formatMatches(images), nil
}

func formatMatches(matches []search.Match) string {
	entries := make([]string, 0, len(matches))
	for i, m := range matches {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d.\n", i+1)
		if m.Metadata.Src != "" {
			fmt.Fprintf(&sb, "Image Content:\n%s\n", m.Content)
			fmt.Fprintf(&sb, "Page Url: %s\n", displayURL(m.Metadata.URL))
			fmt.Fprintf(&sb, "Image Src: %s\n", m.Metadata.Src)
		} else {
			fmt.Fprintf(&sb, "Text Content:\n%s\n", m.Content)
			fmt.Fprintf(&sb, "Page Url: %s\n", displayURL(m.Metadata.URL))
		}
		fmt.Fprintf(&sb, "Score: %.4f\n", m.Score)
		entries = append(entries, sb.String())
	}
	return strings.Join(entries, "\n")
}
