package search

import (
	"context"
	"testing"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/graph"
)

func TestIndexerIndex(t *testing.T) {
	ctx := context.Background()
	store, err := graph.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("graph.Open() failed: %v", err)
	}
	defer store.Close()

	w, err := graph.NewWriter(store, graph.WriterOptions{})
	if err != nil {
		t.Fatalf("NewWriter() failed: %v", err)
	}
	page := &models.Page{
		URL:   "https://a.com/handbook/1.html",
		Title: "Wukong",
		Blocks: []models.Block{
			{Kind: models.BlockText, Text: "Tiger Vanguard strategy"},
			{Kind: models.BlockImage, Image: &models.ImageRef{Src: "https://img.com/1.png"}},
		},
	}
	images := []models.ImageContext{{URL: page.URL, Src: "https://img.com/1.png", ImageDescription: "arena map"}}
	if err := w.WritePage(ctx, page, images); err != nil {
		t.Fatalf("WritePage() failed: %v", err)
	}

	idx := NewLocalIndex()
	stats, err := NewIndexer(store, idx, nil).Index(ctx)
	if err != nil {
		t.Fatalf("Index() failed: %v", err)
	}
	if stats.Texts != 1 || stats.Images != 1 {
		t.Fatalf("Index() = %+v, want 1 text and 1 image", stats)
	}

	textID, _ := store.FindNode(ctx, models.KindText, page.URL)
	matches, err := idx.Search(ctx, "tiger vanguard", 4, Filter{Type: TypeText})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata.NodeID != textID {
		t.Fatalf("Search() = %+v, want text node %s", matches, textID)
	}
	if matches[0].Metadata.PageURL != page.URL {
		t.Errorf("page url = %q, want %q", matches[0].Metadata.PageURL, page.URL)
	}

	imgs, err := idx.Search(ctx, "arena map", 4, Filter{Type: TypeImage})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(imgs) != 1 || imgs[0].Metadata.Src != "https://img.com/1.png" {
		t.Fatalf("image search = %+v", imgs)
	}
}
