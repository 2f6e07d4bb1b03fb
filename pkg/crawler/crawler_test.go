package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/fetcher"
	"github.com/mccodeai/mmgamerag/pkg/ledger"
	"github.com/mccodeai/mmgamerag/pkg/parser"
	"github.com/mccodeai/mmgamerag/pkg/storage"
)

// site serves a small walkthrough site. Pages reference each other by path.
type site struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

func container(body string) string {
	return `<html><head><title>Guide</title></head><body><div class="Mid2L_con">` + body + `</div></body></html>`
}

func newSite() *site {
	return &site{
		hits: make(map[string]int),
		pages: map[string]string{
			"/seed": container(`<p>Wukong chapter one</p><img src="/s.jpg" alt="seed pic"><a href="/a">a</a><a href="/b">b</a><a href="/missing">m</a>`),
			"/a":    container(`<p>Wukong boss A</p><a href="/c">c</a>`),
			"/b":    container(`<p>unrelated</p><a href="/c">c</a>`),
			"/c":    container(`<p>Wukong boss C</p><a href="/d">d</a>`),
			"/d":    container(`<p>Wukong boss D</p>`),
			"/index": `<html><head><title>Wukong walkthrough index</title></head><body>` +
				`<a href="/c">c</a></body></html>`,
			"/root": container(`<p>Wukong start</p><a href="/index">index</a>`),
			"/root2": container(`<p>Wukong start</p><a href="/x">x</a>`),
			"/x": `<html><head><title>Wukong chapter X</title></head><body>` +
				`<nav><a href="/nav">nav</a></nav>` +
				`<div class="Mid2L_con"><p>boss route</p><a href="/y">y</a></div></body></html>`,
			"/y":   container(`<p>Wukong boss Y</p>`),
			"/nav": container(`<p>Wukong menu</p>`),
		},
	}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()
	page, ok := s.pages[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = io.WriteString(w, page)
}

func (s *site) hit(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// flakySink fails its first n writes.
type flakySink struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakySink) WritePage(_ context.Context, _ *models.Page, _ []models.ImageContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("graph unavailable")
	}
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	pages []string
}

func (r *recordingSink) WritePage(_ context.Context, page *models.Page, _ []models.ImageContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page.URL)
	return nil
}

func newTestCrawler(t *testing.T, l ledger.Ledger, sink PageSink) *Crawler {
	t.Helper()
	store, err := storage.New(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	c, err := New(Deps{
		Fetcher: fetcher.NewFetcher(fetcher.Options{Retries: 1, RetryDelay: time.Millisecond}),
		Parser:  parser.New(parser.Options{}),
		Ledger:  l,
		Storage: store,
		Sink:    sink,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Options{ContainerSelector: "div.Mid2L_con", Workers: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func memLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	l, err := ledger.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func states(res *Result, base string) map[string]State {
	out := make(map[string]State)
	for _, p := range res.Pages {
		out[p.URL[len(base):]] = p.State
	}
	return out
}

func TestCrawl_DepthBound(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		want     map[string]State
	}{
		{
			name:     "depth one visits only the seed",
			maxDepth: 1,
			want:     map[string]State{"/seed": StateLinksEnumerated},
		},
		{
			name:     "depth two visits direct links only",
			maxDepth: 2,
			want: map[string]State{
				"/seed":    StateRecursed,
				"/a":       StateLinksEnumerated,
				"/b":       StateIrrelevant,
				"/missing": StateFailed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSite()
			srv := httptest.NewServer(s)
			defer srv.Close()

			c := newTestCrawler(t, memLedger(t), nil)
			res, err := c.Crawl(context.Background(), srv.URL+"/seed", "wukong", tt.maxDepth)
			if err != nil {
				t.Fatalf("Crawl() error = %v", err)
			}

			got := states(res, srv.URL)
			if len(got) != len(tt.want) {
				t.Fatalf("visited %v, want %v", got, tt.want)
			}
			for path, want := range tt.want {
				if got[path] != want {
					t.Errorf("%s state = %q, want %q", path, got[path], want)
				}
			}
			if s.hit("/c") != 0 {
				t.Error("grandchild /c was fetched")
			}
		})
	}
}

func TestCrawl_ExtractsOnlyNewLinks(t *testing.T) {
	s := newSite()
	srv := httptest.NewServer(s)
	defer srv.Close()

	l := memLedger(t)
	sink := &recordingSink{}
	c := newTestCrawler(t, l, sink)

	first, err := c.Crawl(context.Background(), srv.URL+"/seed", "wukong", 2)
	if err != nil {
		t.Fatalf("first Crawl() error = %v", err)
	}
	if first.Extracted() != 2 {
		t.Errorf("first run extracted %d pages, want 2", first.Extracted())
	}

	second, err := c.Crawl(context.Background(), srv.URL+"/seed", "wukong", 2)
	if err != nil {
		t.Fatalf("second Crawl() error = %v", err)
	}
	if second.Extracted() != 0 {
		t.Errorf("second run extracted %d pages, want 0", second.Extracted())
	}
	if got := states(second, srv.URL)["/a"]; got != StateAlreadyVisited {
		t.Errorf("/a state on rerun = %q, want %q", got, StateAlreadyVisited)
	}
	if len(sink.pages) != 2 {
		t.Errorf("sink received %d pages, want 2", len(sink.pages))
	}

	stats, err := l.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Links != 2 {
		t.Errorf("ledger links = %d, want 2", stats.Links)
	}
}

func TestCrawl_TitleMatchRestartsDepth(t *testing.T) {
	s := newSite()
	srv := httptest.NewServer(s)
	defer srv.Close()

	c := newTestCrawler(t, memLedger(t), nil)
	res, err := c.Crawl(context.Background(), srv.URL+"/root", "wukong", 2)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	got := states(res, srv.URL)
	if got["/index"] != StateRecursed {
		t.Errorf("/index state = %q, want %q", got["/index"], StateRecursed)
	}
	if got["/c"] != StateLinksEnumerated {
		t.Errorf("/c state = %q, want %q", got["/c"], StateLinksEnumerated)
	}
	if res.Extracted() != 2 {
		t.Errorf("extracted %d pages, want 2 (/root and /c)", res.Extracted())
	}
	if s.hit("/d") != 0 {
		t.Error("/d is beyond the restarted depth budget but was fetched")
	}
}

func TestCrawl_TitleMatchInContainerKeepsDepth(t *testing.T) {
	s := newSite()
	srv := httptest.NewServer(s)
	defer srv.Close()

	c := newTestCrawler(t, memLedger(t), nil)
	res, err := c.Crawl(context.Background(), srv.URL+"/root2", "wukong", 2)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	got := states(res, srv.URL)
	if got["/x"] != StateLinksEnumerated {
		t.Errorf("/x state = %q, want %q", got["/x"], StateLinksEnumerated)
	}
	if s.hit("/y") != 0 {
		t.Error("/y is beyond max depth but was fetched")
	}
	if s.hit("/nav") != 0 {
		t.Error("/nav is outside the container but was fetched")
	}
}

func TestCrawl_RetriesFailedExtraction(t *testing.T) {
	s := newSite()
	srv := httptest.NewServer(s)
	defer srv.Close()

	sink := &flakySink{fails: 1}
	c := newTestCrawler(t, memLedger(t), sink)

	for run, want := range []int{0, 1, 0} {
		res, err := c.Crawl(context.Background(), srv.URL+"/d", "wukong", 1)
		if err != nil {
			t.Fatalf("run %d: Crawl() error = %v", run+1, err)
		}
		if res.Extracted() != want {
			t.Errorf("run %d: extracted %d pages, want %d", run+1, res.Extracted(), want)
		}
	}
	if sink.calls != 2 {
		t.Errorf("sink calls = %d, want 2", sink.calls)
	}
}

func TestCrawl_RewritesMissingDump(t *testing.T) {
	s := newSite()
	srv := httptest.NewServer(s)
	defer srv.Close()

	c := newTestCrawler(t, memLedger(t), nil)
	for run := 1; run <= 2; run++ {
		res, err := c.Crawl(context.Background(), srv.URL+"/d", "wukong", 2)
		if err != nil {
			t.Fatalf("run %d: Crawl() error = %v", run, err)
		}
		if res.Extracted() != 1 {
			t.Errorf("run %d: extracted %d pages, want 1", run, res.Extracted())
		}
		if !c.deps.Storage.HasPage(srv.URL + "/d") {
			t.Fatalf("run %d: no dump for /d", run)
		}
		if err := os.Remove(filepath.Join(c.deps.Storage.Dir(), storage.FileName(srv.URL+"/d"))); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
	}
}

func TestCrawl_Cancelled(t *testing.T) {
	s := newSite()
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(t, memLedger(t), nil)
	res, err := c.Crawl(ctx, srv.URL+"/seed", "wukong", 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Crawl() error = %v, want context.Canceled", err)
	}
	if res == nil || len(res.Pages) != 0 {
		t.Errorf("partial result = %+v, want no pages", res)
	}
}

func TestSearchSeed(t *testing.T) {
	c, err := New(Deps{
		Fetcher: fetcher.NewFetcher(fetcher.Options{}),
		Parser:  parser.New(parser.Options{}),
		Ledger:  memLedger(t),
	}, Options{SearchURL: "https://so.gamersky.com/all/handbook?s={keyword}"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := c.SearchSeed("黑神话 悟空")
	if err != nil {
		t.Fatalf("SearchSeed() error = %v", err)
	}
	want := fmt.Sprintf("https://so.gamersky.com/all/handbook?s=%s", "%E9%BB%91%E7%A5%9E%E8%AF%9D+%E6%82%9F%E7%A9%BA")
	if got != want {
		t.Errorf("SearchSeed() = %q, want %q", got, want)
	}
}
