// Package search finds the graph's Text and Image nodes most similar to a
// question.
package search

import (
	"context"
)

// Type is the kind of indexed item.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "img"
)

// Metadata ties an indexed document back to the graph.
type Metadata struct {
	Type    Type   `json:"type"`
	NodeID  string `json:"node_id"`
	URL     string `json:"url,omitempty"`
	PageURL string `json:"page_url,omitempty"`
	Src     string `json:"src,omitempty"`
}

// Document is one indexed item.
type Document struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Match is a search hit. Higher scores are more similar.
type Match struct {
	Content  string
	Metadata Metadata
	Score    float64
}

// Filter narrows a search to one item type. An empty Type matches all.
type Filter struct {
	Type Type
}

type Searcher interface {
	Search(ctx context.Context, query string, k int, filter Filter) ([]Match, error)
}

// Index is a Searcher that can be filled.
type Index interface {
	Searcher
	Upsert(ctx context.Context, docs []Document) error
	Reset(ctx context.Context) error
}
