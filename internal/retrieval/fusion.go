package retrieval

import (
	"sort"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// rrfK is the standard reciprocal-rank-fusion smoothing constant.
const rrfK = 60

// FuseRRF merges a vector-ranked list and a keyword-ranked list with
// reciprocal rank fusion. Each result contributes
// weight * 1/(rrfK + rank + 1) with zero-based ranks; a chunk present in both
// lists gets the sum of its two contributions, keyed by (doc id, chunk index).
// An empty list simply contributes nothing. vectorWeight is the share given to
// the vector list; the keyword list gets the complement.
func FuseRRF(vectorResults, keywordResults []model.RetrievalResult, vectorWeight float64, topK int) []model.RetrievalResult {
	type fused struct {
		result model.RetrievalResult
		score  float64
		order  int
	}
	merged := make(map[string]*fused)
	order := 0

	accumulate := func(results []model.RetrievalResult, weight float64) {
		for rank, r := range results {
			contribution := weight / float64(rrfK+rank+1)
			key := r.Metadata.Key()
			if entry, ok := merged[key]; ok {
				entry.score += contribution
				continue
			}
			merged[key] = &fused{result: r, score: contribution, order: order}
			order++
		}
	}
	accumulate(vectorResults, vectorWeight)
	accumulate(keywordResults, 1-vectorWeight)

	ranked := make([]*fused, 0, len(merged))
	for _, entry := range merged {
		ranked = append(ranked, entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]model.RetrievalResult, 0, len(ranked))
	for _, entry := range ranked {
		r := entry.result
		r.Score = entry.score
		out = append(out, r)
	}
	return out
}
