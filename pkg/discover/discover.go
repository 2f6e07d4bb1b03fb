// Package discover decides whether a page is relevant to the crawl keyword
// and which of its links the crawler should follow.
package discover

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mccodeai/mmgamerag/internal/common"
	"github.com/mccodeai/mmgamerag/pkg/parser"
)

// Match records how a page was found relevant.
type Match int

const (
	MatchNone Match = iota
	MatchContainer
	// MatchTitle: the container exists but only the page title has the keyword.
	MatchTitle
	// MatchFallback: no container, the page title has the keyword.
	MatchFallback
)

func (m Match) String() string {
	switch m {
	case MatchContainer:
		return "container"
	case MatchTitle:
		return "title"
	case MatchFallback:
		return "fallback"
	}
	return "none"
}

// Result of inspecting one page.
type Result struct {
	Match Match
	// ContainerFound is false when the selector matched nothing.
	ContainerFound bool
	Links          []string
}

// Relevant reports whether the page matched by container or title.
func (r Result) Relevant() bool {
	return r.Match != MatchNone
}

type Discoverer struct {
	keyword        string
	selector       string
	allowedDomains []string
}

// New builds a discoverer. allowedDomains restricts followed links; empty
// allows every host.
func New(keyword, selector string, allowedDomains []string) *Discoverer {
	return &Discoverer{
		keyword:        strings.TrimSpace(keyword),
		selector:       strings.TrimSpace(selector),
		allowedDomains: allowedDomains,
	}
}

// Inspect checks the keyword against the container text, then the page
// title. The page body outside the container is never searched. Links come
// from the container whenever it exists and from the whole document only
// on a fallback match.
func (d *Discoverer) Inspect(doc *goquery.Document, pageURL string) Result {
	var container *goquery.Selection
	if d.selector != "" {
		container = doc.Find(d.selector).First()
	}
	res := Result{ContainerFound: container != nil && container.Length() > 0}

	switch {
	case res.ContainerFound && d.contains(container.Text()):
		res.Match = MatchContainer
		res.Links = d.links(container, pageURL)
	case d.contains(parser.PageTitle(doc)):
		if res.ContainerFound {
			res.Match = MatchTitle
			res.Links = d.links(container, pageURL)
		} else {
			res.Match = MatchFallback
			res.Links = d.links(doc.Selection, pageURL)
		}
	}
	return res
}

func (d *Discoverer) contains(text string) bool {
	if d.keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(d.keyword))
}

// links returns the absolute, de-duplicated hrefs under sel in document
// order, skipping script links, mail links, fragments and direct images.
func (d *Discoverer) links(sel *goquery.Selection, pageURL string) []string {
	seen := make(map[string]struct{})
	var out []string
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
			return
		}

		resolved := common.ResolveURL(pageURL, href)
		if i := strings.Index(resolved, "#"); i >= 0 {
			resolved = resolved[:i]
		}
		if resolved == "" || !strings.HasPrefix(resolved, "http") {
			return
		}
		if common.IsImageLink(resolved) || !common.HostAllowed(resolved, d.allowedDomains) {
			return
		}
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	})
	return out
}
