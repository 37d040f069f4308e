package retrieval

import (
	"sort"
	"strings"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

// SearchHistory scores past messages against the query by keyword overlap and
// returns the topK best, tagged model.SourceHistory. Messages that match no
// keyword are dropped entirely. Results are transient and never persisted.
func SearchHistory(messages []model.Message, query string, topK int) []model.RetrievalResult {
	if topK <= 0 {
		return nil
	}
	keywords := make(map[string]struct{})
	for _, kw := range strings.Fields(strings.ToLower(query)) {
		keywords[kw] = struct{}{}
	}
	if len(keywords) == 0 {
		return nil
	}

	type scored struct {
		result model.RetrievalResult
		order  int
	}
	candidates := make([]scored, 0, len(messages))
	for i, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		lower := strings.ToLower(msg.Content)
		hits := 0
		for kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		candidates = append(candidates, scored{
			result: model.RetrievalResult{
				Text:   msg.Content,
				Score:  float64(hits),
				Source: model.SourceHistory,
			},
			order: i,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].order < candidates[j].order
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]model.RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.result)
	}
	return out
}
