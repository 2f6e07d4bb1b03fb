package discover

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const base = "https://www.gamersky.com/handbook/202408/1.shtml"

func mustDoc(t *testing.T, raw string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name          string
		html          string
		wantMatch     Match
		wantContainer bool
		wantLinks     []string
	}{
		{
			name: "keyword in container",
			html: `<html><head><title>Chapter one</title></head><body>
<a href="/outside.shtml">outside</a>
<div class="Mid2L_con"><p>Black Myth Wukong boss</p>
<a href="2.shtml">next</a>
<a href="2.shtml#top">dup</a>
<a href="javascript:void(0)">js</a>
<a href="mailto:a@b.c">mail</a>
<a href="#section">frag</a>
<a href="https://img1.gamersky.com/a.jpg">image</a>
<a href="https://www.gamersky.com/handbook/202408/3.shtml">three</a>
</div></body></html>`,
			wantMatch:     MatchContainer,
			wantContainer: true,
			wantLinks: []string{
				"https://www.gamersky.com/handbook/202408/2.shtml",
				"https://www.gamersky.com/handbook/202408/3.shtml",
			},
		},
		{
			name: "keyword only in title without container",
			html: `<html><head><title>Wukong walkthrough index</title></head><body>
<a href="/a.shtml">a</a><a href="/b.shtml">b</a></body></html>`,
			wantMatch:     MatchFallback,
			wantContainer: false,
			wantLinks: []string{
				"https://www.gamersky.com/a.shtml",
				"https://www.gamersky.com/b.shtml",
			},
		},
		{
			name: "keyword only in title with container",
			html: `<html><head><title>Wukong chapter X</title></head><body>
<nav><a href="/nav.shtml">nav</a></nav>
<div class="Mid2L_con"><p>boss route</p><a href="/y.shtml">y</a></div></body></html>`,
			wantMatch:     MatchTitle,
			wantContainer: true,
			wantLinks: []string{
				"https://www.gamersky.com/y.shtml",
			},
		},
		{
			name: "keyword only outside the container",
			html: `<html><head><title>Other game</title></head><body>
<p>Wukong is mentioned in the sidebar</p>
<div class="Mid2L_con"><p>nothing here</p><a href="/x.shtml">x</a></div></body></html>`,
			wantMatch:     MatchNone,
			wantContainer: true,
		},
	}

	d := New("wukong", "div.Mid2L_con", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Inspect(mustDoc(t, tt.html), base)
			if res.Match != tt.wantMatch {
				t.Errorf("Match = %v, want %v", res.Match, tt.wantMatch)
			}
			if res.ContainerFound != tt.wantContainer {
				t.Errorf("ContainerFound = %v, want %v", res.ContainerFound, tt.wantContainer)
			}
			if len(res.Links) != len(tt.wantLinks) {
				t.Fatalf("Links = %v, want %v", res.Links, tt.wantLinks)
			}
			for i := range tt.wantLinks {
				if res.Links[i] != tt.wantLinks[i] {
					t.Errorf("Links[%d] = %q, want %q", i, res.Links[i], tt.wantLinks[i])
				}
			}
		})
	}
}

func TestInspect_AllowedDomains(t *testing.T) {
	doc := mustDoc(t, `<html><body><div id="c">wukong
<a href="https://www.gamersky.com/a.shtml">a</a>
<a href="https://elsewhere.com/b.html">b</a></div></body></html>`)

	res := New("wukong", "#c", []string{"gamersky.com"}).Inspect(doc, base)
	if len(res.Links) != 1 || res.Links[0] != "https://www.gamersky.com/a.shtml" {
		t.Errorf("Links = %v", res.Links)
	}
}
