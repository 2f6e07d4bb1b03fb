// Package parser extracts the interleaved text and image content of a
// walkthrough page in document order.
package parser

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mccodeai/mmgamerag/internal/common"
	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/apperr"
)

// Options configures a Parser.
type Options struct {
	// StopPhrases end extraction at the first text fragment containing one.
	StopPhrases []string
	// ThumbnailRules rewrite thumbnail srcs to full resolution.
	ThumbnailRules []models.ThumbnailRule
}

type Parser struct {
	stopPhrases []string
	thumbnails  []models.ThumbnailRule
}

func New(opts Options) *Parser {
	var phrases []string
	for _, p := range opts.StopPhrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Parser{
		stopPhrases: phrases,
		thumbnails:  opts.ThumbnailRules,
	}
}

// Extract walks the container matched by selector and returns the page's
// title and its text and image blocks in document order. An empty selector
// lets readability locate the main content. A selector that matches nothing
// returns apperr.ErrMissingContainer.
func (p *Parser) Extract(doc *goquery.Document, pageURL, selector string) (*models.Page, error) {
	page := &models.Page{
		URL:   pageURL,
		Title: PageTitle(doc),
	}

	var container *goquery.Selection
	if strings.TrimSpace(selector) == "" {
		article, err := p.readable(doc, pageURL)
		if err != nil {
			return nil, err
		}
		if page.Title == "" {
			page.Title = normalizeText(article.Title)
		}
		content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrParse, err)
		}
		container = content.Find("body")
		if container.Length() == 0 {
			container = content.Selection
		}
	} else {
		container = doc.Find(selector).First()
		if container.Length() == 0 {
			return nil, fmt.Errorf("%w: %q on %s", apperr.ErrMissingContainer, selector, pageURL)
		}
	}

	w := &walker{parser: p, pageURL: pageURL}
	for _, n := range container.Nodes {
		if !w.walk(n) {
			break
		}
	}
	page.Blocks = w.blocks
	return page, nil
}

func (p *Parser) readable(doc *goquery.Document, pageURL string) (readability.Article, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return readability.Article{}, fmt.Errorf("%w: %w", apperr.ErrParse, err)
	}
	raw, err := doc.Html()
	if err != nil {
		return readability.Article{}, fmt.Errorf("%w: %w", apperr.ErrParse, err)
	}
	rp := readability.NewParser()
	article, err := rp.Parse(strings.NewReader(raw), parsedURL)
	if err != nil {
		return readability.Article{}, fmt.Errorf("%w: readability: %w", apperr.ErrMissingContainer, err)
	}
	return article, nil
}

// PageTitle is the document's <title>, falling back to the first h1.
func PageTitle(doc *goquery.Document) string {
	if title := normalizeText(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return normalizeText(doc.Find("h1").First().Text())
}

type walker struct {
	parser  *Parser
	pageURL string
	blocks  []models.Block
}

// walk visits n depth-first. It returns false once a stop phrase is seen.
func (w *walker) walk(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		text := normalizeText(n.Data)
		if text == "" {
			return true
		}
		if w.parser.isStop(text) {
			return false
		}
		w.blocks = append(w.blocks, models.Block{Kind: models.BlockText, Text: text})
		return true
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Iframe:
			return true
		case atom.Img:
			if img := w.image(n); img != nil {
				w.blocks = append(w.blocks, models.Block{Kind: models.BlockImage, Image: img})
			}
			return true
		}
	case html.CommentNode:
		return true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !w.walk(c) {
			return false
		}
	}
	return true
}

func (w *walker) image(n *html.Node) *models.ImageRef {
	src := attr(n, "src")
	if src == "" || strings.HasPrefix(src, "data:") {
		if lazy := attr(n, "data-src"); lazy != "" {
			src = lazy
		} else if lazy := attr(n, "data-original"); lazy != "" {
			src = lazy
		}
	}
	src = common.ResolveURL(w.pageURL, src)
	if src == "" {
		return nil
	}

	return &models.ImageRef{
		Src:    w.parser.fullResolution(src),
		Alt:    normalizeText(attr(n, "alt")),
		Title:  normalizeText(attr(n, "title")),
		Width:  attr(n, "width"),
		Height: attr(n, "height"),
		Link:   w.ownerLink(n),
	}
}

// ownerLink is the href of the nearest enclosing anchor unless it points at
// an image, in which case the image belongs to the current page.
func (w *walker) ownerLink(n *html.Node) string {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.Type != html.ElementNode || a.DataAtom != atom.A {
			continue
		}
		href := strings.TrimSpace(attr(a, "href"))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			break
		}
		resolved := common.ResolveURL(w.pageURL, href)
		if resolved == "" || common.IsImageLink(resolved) {
			break
		}
		return resolved
	}
	return w.pageURL
}

func (p *Parser) fullResolution(src string) string {
	for _, rule := range p.thumbnails {
		if rule.Old == "" {
			continue
		}
		src = strings.ReplaceAll(src, rule.Old, rule.New)
	}
	return src
}

func (p *Parser) isStop(text string) bool {
	for _, phrase := range p.stopPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// normalizeText trims every line and joins the non-empty ones with a space.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}
