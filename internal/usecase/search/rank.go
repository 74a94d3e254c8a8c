package search

import (
	"context"
	"slices"

	"github.com/kailas-cloud/coursedex/internal/domain/search/fuzzy"
)

// Hit is one ranked entry. Index points into the names passed to Rank.
type Hit struct {
	Index int
	Score int
}

// Rank scores query against processed names and returns at most limit hits
// above threshold, with unique ids, ordered by (score desc, index asc).
//
// Candidates come from a bounded top-k pass; hits at or below threshold are
// dropped; duplicates of an id already taken are skipped in score order
// until limit ids are collected. The final order re-derives each score so
// it holds even if the top-k pass broke ties differently.
//
// query must already be processed and non-blank. ids[i] is the identity of
// names[i].
func Rank(ctx context.Context, query string, names, ids []string, limit, threshold int) ([]Hit, error) {
	matches, err := fuzzy.ExtractContext(ctx, query, names, limit, fuzzy.WRatio)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(matches))
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		if m.Score <= threshold {
			continue
		}
		id := ids[m.Index]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		hits = append(hits, Hit{Index: m.Index, Score: fuzzy.WRatio(query, names[m.Index])})
		if len(hits) == limit {
			break
		}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return a.Index - b.Index
	})
	return hits, nil
}
