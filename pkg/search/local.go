package search

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mccodeai/mmgamerag/pkg/analytics"
)

type localDoc struct {
	doc   Document
	terms map[string]int
	norm  float64
	seq   int
}

// LocalIndex is an in-process TF-IDF index. It needs no external services and
// is rebuilt from the graph on start.
type LocalIndex struct {
	mu       sync.RWMutex
	analyzer *analytics.Analytics
	docs     map[string]*localDoc
	df       map[string]int
	seq      int
	dirty    bool
}

func NewLocalIndex() *LocalIndex {
	return &LocalIndex{
		analyzer: &analytics.Analytics{},
		docs:     make(map[string]*localDoc),
		df:       make(map[string]int),
	}
}

func (l *LocalIndex) Upsert(_ context.Context, docs []Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range docs {
		if old, ok := l.docs[d.ID]; ok {
			for term := range old.terms {
				l.df[term]--
			}
		}
		terms := l.analyzer.WordFrequency(d.Content)
		for term := range terms {
			l.df[term]++
		}
		entry := &localDoc{doc: d, terms: terms, seq: l.seq}
		if old, ok := l.docs[d.ID]; ok {
			entry.seq = old.seq
		} else {
			l.seq++
		}
		l.docs[d.ID] = entry
	}
	l.dirty = true
	return nil
}

// refresh recomputes document norms after upserts changed the idf weights.
func (l *LocalIndex) refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return
	}
	for _, entry := range l.docs {
		entry.norm = l.norm(entry.terms)
	}
	l.dirty = false
}

func (l *LocalIndex) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = make(map[string]*localDoc)
	l.df = make(map[string]int)
	l.seq = 0
	return nil
}

// Len is the number of indexed documents.
func (l *LocalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

// Search scores documents by cosine similarity of TF-IDF vectors. Ties keep
// insertion order.
func (l *LocalIndex) Search(_ context.Context, query string, k int, filter Filter) ([]Match, error) {
	start := time.Now()
	defer func() { searchDuration.WithLabelValues("local").Observe(time.Since(start).Seconds()) }()
	searchQueriesTotal.WithLabelValues("local", filterLabel(filter)).Inc()

	l.refresh()
	l.mu.RLock()
	defer l.mu.RUnlock()

	qterms := l.analyzer.WordFrequency(query)
	qnorm := l.norm(qterms)
	if qnorm == 0 || k <= 0 {
		searchResultsCount.Observe(0)
		return nil, nil
	}

	type scored struct {
		entry *localDoc
		score float64
	}
	var hits []scored
	for _, entry := range l.docs {
		if filter.Type != "" && entry.doc.Metadata.Type != filter.Type {
			continue
		}
		if entry.norm == 0 {
			continue
		}
		var dot float64
		for term, qtf := range qterms {
			tf, ok := entry.terms[term]
			if !ok {
				continue
			}
			idf := l.idf(term)
			dot += weight(qtf, idf) * weight(tf, idf)
		}
		if dot == 0 {
			continue
		}
		hits = append(hits, scored{entry: entry, score: dot / (qnorm * entry.norm)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entry.seq < hits[j].entry.seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{Content: h.entry.doc.Content, Metadata: h.entry.doc.Metadata, Score: h.score})
	}
	searchResultsCount.Observe(float64(len(matches)))
	return matches, nil
}

func (l *LocalIndex) idf(term string) float64 {
	return math.Log(1+float64(len(l.docs))/float64(1+l.df[term])) + 1
}

func (l *LocalIndex) norm(terms map[string]int) float64 {
	var sum float64
	for term, tf := range terms {
		w := weight(tf, l.idf(term))
		sum += w * w
	}
	return math.Sqrt(sum)
}

func weight(tf int, idf float64) float64 {
	return (1 + math.Log(float64(tf))) * idf
}
