// Package answer post-processes LLM answers for display: image references
// become inline data URIs and Markdown can be rendered to HTML.
package answer

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/sync/errgroup"
)

// ImageFetcher downloads image bytes.
type ImageFetcher interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

var (
	// ![alt](src "title")
	markdownImage = regexp.MustCompile(`(!\[[^\]]*\]\()([^)\s]+)((?:\s+"[^"]*")?\))`)
	// <img ... src="...">
	htmlImage = regexp.MustCompile(`(<img\b[^>]*?\bsrc\s*=\s*)(["'])([^"']+)(["'])`)
)

const fetchConcurrency = 4

type Formatter struct {
	fetcher ImageFetcher
	logger  *slog.Logger
	md      goldmark.Markdown
}

func New(fetcher ImageFetcher, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{
		fetcher: fetcher,
		logger:  logger,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Format replaces every remote image reference in raw with a base64 data
// URI. References whose download fails are left unchanged. Each distinct
// src is fetched once.
func (f *Formatter) Format(ctx context.Context, raw string) string {
	var srcs []string
	seen := make(map[string]bool)
	collect := func(src string) {
		if !isRemote(src) || seen[src] {
			return
		}
		seen[src] = true
		srcs = append(srcs, src)
	}
	for _, m := range markdownImage.FindAllStringSubmatch(raw, -1) {
		collect(m[2])
	}
	for _, m := range htmlImage.FindAllStringSubmatch(raw, -1) {
		collect(m[3])
	}
	if len(srcs) == 0 {
		return raw
	}

	encoded := f.encodeAll(ctx, srcs)

	out := markdownImage.ReplaceAllStringFunc(raw, func(match string) string {
		m := markdownImage.FindStringSubmatch(match)
		if uri, ok := encoded[m[2]]; ok {
			return m[1] + uri + m[3]
		}
		return match
	})
	out = htmlImage.ReplaceAllStringFunc(out, func(match string) string {
		m := htmlImage.FindStringSubmatch(match)
		if uri, ok := encoded[m[3]]; ok {
			return m[1] + m[2] + uri + m[4]
		}
		return match
	})
	return out
}

func (f *Formatter) encodeAll(ctx context.Context, srcs []string) map[string]string {
	var mu sync.Mutex
	encoded := make(map[string]string, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, src := range srcs {
		g.Go(func() error {
			target := src
			if strings.HasPrefix(target, "//") {
				target = "https:" + target
			}
			data, err := f.fetcher.GetBytes(gctx, target)
			if err != nil {
				f.logger.Warn("Keeping image reference", "src", src, "error", err)
				return nil
			}
			uri := DataURI(data)
			mu.Lock()
			encoded[src] = uri
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return encoded
}

// DataURI encodes data with its sniffed MIME type.
func DataURI(data []byte) string {
	mime := mimetype.Detect(data).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ToHTML renders Markdown. Raw HTML such as inline <img> tags is kept.
func (f *Formatter) ToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "//")
}
