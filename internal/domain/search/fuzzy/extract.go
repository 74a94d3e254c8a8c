package fuzzy

import (
	"container/heap"
	"context"
	"slices"
)

// cancelCheckEvery bounds how many choices are scored between context checks.
const cancelCheckEvery = 256

// Scorer compares two processed strings and returns a score in [0,100].
type Scorer func(query, choice string) int

// Match is one scored choice. Index points into the choices slice.
type Match struct {
	Index int
	Score int
}

// Extract returns up to limit best matches of query among choices, ordered by
// score descending then index ascending. Both query and choices must already be
// processed. A nil scorer means WRatio.
func Extract(query string, choices []string, limit int, scorer Scorer) []Match {
	out, _ := ExtractContext(context.Background(), query, choices, limit, scorer)
	return out
}

// ExtractContext is Extract with cancellation. It returns ctx.Err() when the
// context is done before all choices are scored.
func ExtractContext(ctx context.Context, query string, choices []string, limit int, scorer Scorer) ([]Match, error) {
	if limit <= 0 || len(choices) == 0 || query == "" {
		return nil, nil
	}
	if scorer == nil {
		scorer = WRatio
	}

	h := make(matchHeap, 0, min(limit, len(choices)))
	for i, choice := range choices {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		m := Match{Index: i, Score: scorer(query, choice)}
		if len(h) < limit {
			heap.Push(&h, m)
			continue
		}
		if better(m, h[0]) {
			h[0] = m
			heap.Fix(&h, 0)
		}
	}

	out := []Match(h)
	slices.SortFunc(out, func(a, b Match) int {
		if better(a, b) {
			return -1
		}
		if better(b, a) {
			return 1
		}
		return 0
	})
	return out, nil
}

// better orders matches by score desc, then index asc.
func better(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// matchHeap keeps the worst retained match at the root.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) { *h = append(*h, x.(Match)) }

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}
