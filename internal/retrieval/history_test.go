package retrieval

import (
	"testing"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

func TestSearchHistoryScoresByKeywordOverlap(t *testing.T) {
	messages := []model.Message{
		{Content: "we discussed coffee shop branding ideas"},
		{Content: "branding colors for the coffee label"},
		{Content: "unrelated grocery list"},
	}

	results := SearchHistory(messages, "coffee branding", 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score != 2 || results[1].Score != 2 {
		t.Fatalf("expected both matches to hit 2 keywords, got %v and %v", results[0].Score, results[1].Score)
	}
	for _, r := range results {
		if r.Source != model.SourceHistory {
			t.Fatalf("expected source %q, got %q", model.SourceHistory, r.Source)
		}
	}
}

func TestSearchHistoryDropsZeroScores(t *testing.T) {
	messages := []model.Message{
		{Content: "nothing relevant here"},
		{Content: "still nothing"},
	}
	if results := SearchHistory(messages, "quantum pancakes", 5); len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchHistoryCaseInsensitive(t *testing.T) {
	messages := []model.Message{{Content: "Brainstorm NAMES for the startup"}}
	results := SearchHistory(messages, "names startup", 5)
	if len(results) != 1 || results[0].Score != 2 {
		t.Fatalf("expected one result with score 2, got %v", results)
	}
}

func TestSearchHistoryTruncatesToTopK(t *testing.T) {
	messages := []model.Message{
		{Content: "idea one"},
		{Content: "idea two"},
		{Content: "idea three"},
		{Content: "idea four"},
	}
	results := SearchHistory(messages, "idea", 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestSearchHistoryEmptyQuery(t *testing.T) {
	messages := []model.Message{{Content: "anything"}}
	if results := SearchHistory(messages, "   ", 5); len(results) != 0 {
		t.Fatalf("expected no results for blank query, got %d", len(results))
	}
}
