package assembler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/graph"
	"github.com/mccodeai/mmgamerag/pkg/search"
)

// stubSearcher returns fixed matches per filter type.
type stubSearcher struct {
	matches map[search.Type][]search.Match
	err     error
}

func (s *stubSearcher) Search(_ context.Context, _ string, k int, f search.Filter) ([]search.Match, error) {
	if s.err != nil {
		return nil, s.err
	}
	m := s.matches[f.Type]
	if len(m) > k {
		m = m[:k]
	}
	return m, nil
}

func setupGraph(t *testing.T) *graph.SQLStore {
	t.Helper()

	ctx := context.Background()
	store, err := graph.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("graph.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	w, err := graph.NewWriter(store, graph.WriterOptions{PageMarker: `^Page \d+`})
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	pages := []*models.Page{
		{URL: "https://a.com/gl/1.html", Title: "Wukong_Guide", Blocks: []models.Block{{Kind: models.BlockText, Text: "intro"}}},
		{URL: "https://a.com/gl/2.html", Title: "Wukong_Guide", Blocks: []models.Block{{Kind: models.BlockText, Text: "Page 2"}, {Kind: models.BlockImage, Image: &models.ImageRef{Src: "https://img.com/2.png"}}}},
		{URL: "https://a.com/gl/3.html", Title: "Wukong_Guide", Blocks: []models.Block{{Kind: models.BlockText, Text: "Page 3"}}},
		{URL: "https://a.com/news/9.html", Title: "Patch", Blocks: []models.Block{{Kind: models.BlockText, Text: "notes"}}},
	}
	for _, p := range pages {
		if err := w.WritePage(ctx, p, nil); err != nil {
			t.Fatalf("WritePage() failed: %v", err)
		}
	}
	return store
}

func textMatch(t *testing.T, store *graph.SQLStore, pageURL string) search.Match {
	t.Helper()

	id, err := store.FindNode(context.Background(), models.KindText, pageURL)
	if err != nil || id == "" {
		t.Fatalf("FindNode(%s) = %q, %v", pageURL, id, err)
	}
	return search.Match{Metadata: search.Metadata{Type: search.TypeText, NodeID: id, PageURL: pageURL}}
}

func TestAssembleContext(t *testing.T) {
	store := setupGraph(t)
	searcher := &stubSearcher{matches: map[search.Type][]search.Match{
		search.TypeText: {
			textMatch(t, store, "https://a.com/gl/2.html"),
			textMatch(t, store, "https://a.com/gl/3.html"),
		},
	}}
	a := New(searcher, graph.NewReader(store), Options{})

	got, err := a.AssembleContext(context.Background(), "boss")
	if err != nil {
		t.Fatalf("AssembleContext() failed: %v", err)
	}

	want := strings.Join([]string{
		Divider,
		"Title: Wukong",
		" SubTitle: page 1",
		" Subtitle_page_url: https://a.com/gl/1.html",
		" Subtitle_content: Title: Wukong_Guide\nintro\n\n",
		" SubTitle: Page 2",
		" Subtitle_page_url: https://a.com/gl/2.html",
		" Subtitle_content: Title: Wukong_Guide\nPage 2\n<img src=\"https://img.com/2.png\">\n\n",
		" SubTitle: Page 3",
		" Subtitle_page_url: https://a.com/gl/3.html",
		" Subtitle_content: Title: Wukong_Guide\nPage 3\n\n",
		Divider,
	}, "\n")
	if got != want {
		t.Errorf("AssembleContext() =\n%s\nwant\n%s", got, want)
	}
}

func TestAssembleContext_LinkedImages(t *testing.T) {
	store := setupGraph(t)
	w, err := graph.NewWriter(store, graph.WriterOptions{PageMarker: `^Page \d+`})
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	_, err = w.AttachImages(context.Background(), []models.ImageContext{
		{URL: "https://a.com/gl/2.html", Src: "https://img.com/2.png", ImageDescription: "inline"},
		{URL: "https://a.com/gl/3.html", Src: "https://img.com/boss.png", ContentBeforeImage: "arena", ImageDescription: "boss"},
	})
	if err != nil {
		t.Fatalf("AttachImages() failed: %v", err)
	}

	searcher := &stubSearcher{matches: map[search.Type][]search.Match{
		search.TypeText: {textMatch(t, store, "https://a.com/gl/3.html")},
	}}
	got, err := New(searcher, graph.NewReader(store), Options{}).AssembleContext(context.Background(), "boss")
	if err != nil {
		t.Fatalf("AssembleContext() failed: %v", err)
	}

	want := " Subtitle_content: Title: Wukong_Guide\nPage 3\n\n\n" +
		" Subtitle_image: <img src=\"https://img.com/boss.png\">\n" +
		"content_before_image: arena\nimage_description: boss\ncontent_after_image: \n\n" + Divider
	if !strings.HasSuffix(got, want) {
		t.Errorf("AssembleContext() =\n%s\nwant suffix\n%s", got, want)
	}
	if strings.Count(got, "https://img.com/2.png") != 1 {
		t.Errorf("inline image repeated:\n%s", got)
	}
}

func TestAssembleContext_NoMatches(t *testing.T) {
	store := setupGraph(t)
	a := New(&stubSearcher{}, graph.NewReader(store), Options{})

	got, err := a.AssembleContext(context.Background(), "boss")
	if err != nil {
		t.Fatalf("AssembleContext() failed: %v", err)
	}
	if got != "" {
		t.Errorf("AssembleContext() = %q, want empty", got)
	}
}

func TestAssembleContext_SkipsOrphanText(t *testing.T) {
	store := setupGraph(t)
	ctx := context.Background()

	orphanID, err := store.UpsertNode(ctx, models.TextBlock{PageURL: "https://lost.com/1.html", Content: "lost"})
	if err != nil {
		t.Fatalf("UpsertNode() failed: %v", err)
	}
	searcher := &stubSearcher{matches: map[search.Type][]search.Match{
		search.TypeText: {
			{Metadata: search.Metadata{Type: search.TypeText, NodeID: orphanID}},
			textMatch(t, store, "https://a.com/news/9.html"),
		},
	}}
	a := New(searcher, graph.NewReader(store), Options{})

	got, err := a.AssembleContext(ctx, "patch")
	if err != nil {
		t.Fatalf("AssembleContext() failed: %v", err)
	}
	if strings.Contains(got, "lost") {
		t.Errorf("orphan text leaked into context: %q", got)
	}
	if !strings.Contains(got, "Title: Patch") {
		t.Errorf("context missing Patch title: %q", got)
	}
}

func TestAssembleContext_SearchError(t *testing.T) {
	store := setupGraph(t)
	a := New(&stubSearcher{err: fmt.Errorf("index down")}, graph.NewReader(store), Options{})

	if _, err := a.AssembleContext(context.Background(), "boss"); err == nil {
		t.Error("AssembleContext() should propagate search errors")
	}
}

func TestWindow(t *testing.T) {
	nodes := make([]graph.Node, 10)
	for i := range nodes {
		nodes[i] = graph.Node{ID: fmt.Sprint(i)}
	}

	tests := []struct {
		name  string
		id    string
		limit int
		want  string
	}{
		{"unbounded", "5", 0, "0123456789"},
		{"centered", "5", 4, "3456"},
		{"clamped start", "0", 3, "012"},
		{"clamped end", "9", 3, "789"},
		{"larger than list", "2", 20, "0123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got strings.Builder
			for _, n := range window(nodes, tt.id, tt.limit) {
				got.WriteString(n.ID)
			}
			if got.String() != tt.want {
				t.Errorf("window() = %s, want %s", got.String(), tt.want)
			}
		})
	}
}

func TestQuickContext(t *testing.T) {
	searcher := &stubSearcher{matches: map[search.Type][]search.Match{
		search.TypeText:  {{Content: "boss tips", Metadata: search.Metadata{URL: "https://a.com/1.html"}, Score: 0.9}},
		search.TypeImage: {{Content: "arena", Metadata: search.Metadata{URL: "https://a.com/1.html", Src: "https://img.com/1.png"}, Score: 0.5}},
	}}
	a := New(searcher, nil, Options{})

	texts, images, err := a.QuickContext(context.Background(), "boss")
	if err != nil {
		t.Fatalf("QuickContext() failed: %v", err)
	}
	wantText := "1.\nText Content:\nboss tips\nPage Url: https://a.com/1.html\nScore: 0.9000\n"
	if texts != wantText {
		t.Errorf("texts = %q, want %q", texts, wantText)
	}
	if !strings.Contains(images, "Image Src: https://img.com/1.png") {
		t.Errorf("images missing src: %q", images)
	}
}
