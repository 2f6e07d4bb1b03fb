// Package mapreduce tallies terms across extracted pages.
package mapreduce

import (
	"sort"

	"github.com/mccodeai/mmgamerag/pkg/analytics"
)

// TermCount is one aggregated term.
type TermCount struct {
	Term  string `yaml:"term"`
	Count int    `yaml:"count"`
}

// Map generates a term frequency map for a single page's content.
func Map(content string, a *analytics.Analytics) map[string]int {
	return a.WordFrequency(content)
}

// Reduce aggregates a slice of term frequency maps into a single map.
func Reduce(intermediate []map[string]int) map[string]int {
	finalResults := make(map[string]int)

	for _, counts := range intermediate {
		for term, count := range counts {
			finalResults[term] += count
		}
	}

	return finalResults
}

// Top returns the n most frequent terms, ties broken alphabetically.
func Top(counts map[string]int, n int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		out = append(out, TermCount{Term: term, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
