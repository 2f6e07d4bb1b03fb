package search

import (
	"context"
	"log/slog"

	"github.com/mccodeai/mmgamerag/models"
	"github.com/mccodeai/mmgamerag/pkg/graph"
)

// IndexStats counts indexed documents.
type IndexStats struct {
	Texts  int `yaml:"texts"`
	Images int `yaml:"images"`
}

// Indexer copies the graph's Text and Image nodes into a search index.
type Indexer struct {
	store  graph.Store
	index  Index
	logger *slog.Logger
}

func NewIndexer(store graph.Store, index Index, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, index: index, logger: logger}
}

// Index upserts every Text and Image node. Empty nodes are skipped.
func (ix *Indexer) Index(ctx context.Context) (IndexStats, error) {
	var stats IndexStats

	texts, err := ix.store.ListNodes(ctx, models.KindText)
	if err != nil {
		return stats, err
	}
	docs := make([]Document, 0, len(texts))
	for _, n := range texts {
		tb := models.TextBlockFromProperties(n.Props)
		if tb.Content == "" {
			continue
		}
		docs = append(docs, Document{
			ID:      n.ID,
			Content: tb.Content,
			Metadata: Metadata{
				Type:    TypeText,
				NodeID:  n.ID,
				URL:     tb.PageURL,
				PageURL: tb.PageURL,
			},
		})
	}
	if err := ix.index.Upsert(ctx, docs); err != nil {
		return stats, err
	}
	stats.Texts = len(docs)

	images, err := ix.store.ListNodes(ctx, models.KindImage)
	if err != nil {
		return stats, err
	}
	docs = docs[:0]
	for _, n := range images {
		img := models.ImageRecordFromProperties(n.Props)
		if img.AggregatedContent == "" {
			continue
		}
		docs = append(docs, Document{
			ID:      n.ID,
			Content: img.AggregatedContent,
			Metadata: Metadata{
				Type:    TypeImage,
				NodeID:  n.ID,
				URL:     img.URL,
				PageURL: img.URL,
				Src:     img.Src,
			},
		})
	}
	if err := ix.index.Upsert(ctx, docs); err != nil {
		return stats, err
	}
	stats.Images = len(docs)

	ix.logger.Info("Search index updated", "texts", stats.Texts, "images", stats.Images)
	return stats, nil
}
