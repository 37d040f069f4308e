package retrieval

import (
	"math"
	"testing"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

func kbResult(docID string, chunkIndex int, text string) model.RetrievalResult {
	return model.RetrievalResult{
		Text: text,
		Metadata: model.ChunkMetadata{
			DocID:      docID,
			ChunkIndex: chunkIndex,
		},
	}
}

func TestFuseRRFDeduplicatesSharedChunks(t *testing.T) {
	vector := []model.RetrievalResult{
		kbResult("doc-a", 0, "shared"),
		kbResult("doc-b", 1, "vector only"),
	}
	keyword := []model.RetrievalResult{
		kbResult("doc-a", 0, "shared"),
		kbResult("doc-c", 2, "keyword only"),
	}

	fused := FuseRRF(vector, keyword, 0.5, 10)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}

	// The shared chunk appears in both lists at rank 0, so it must win.
	if fused[0].Metadata.DocID != "doc-a" {
		t.Fatalf("expected shared chunk first, got %q", fused[0].Metadata.DocID)
	}
	want := 0.5/61.0 + 0.5/61.0
	if math.Abs(fused[0].Score-want) > 1e-12 {
		t.Fatalf("shared chunk score = %v, want %v", fused[0].Score, want)
	}
}

func TestFuseRRFScoresByRank(t *testing.T) {
	vector := []model.RetrievalResult{
		kbResult("doc-a", 0, "first"),
		kbResult("doc-b", 0, "second"),
	}

	fused := FuseRRF(vector, nil, 0.5, 10)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if math.Abs(fused[0].Score-0.5/61.0) > 1e-12 {
		t.Fatalf("rank 0 score = %v, want %v", fused[0].Score, 0.5/61.0)
	}
	if math.Abs(fused[1].Score-0.5/62.0) > 1e-12 {
		t.Fatalf("rank 1 score = %v, want %v", fused[1].Score, 0.5/62.0)
	}
}

func TestFuseRRFEmptyListContributesNothing(t *testing.T) {
	keyword := []model.RetrievalResult{
		kbResult("doc-a", 0, "keyword"),
	}

	fused := FuseRRF(nil, keyword, 0.7, 10)
	if len(fused) != 1 {
		t.Fatalf("expected 1 result, got %d", len(fused))
	}
	// The keyword list carries the complement weight.
	want := 0.3 / 61.0
	if math.Abs(fused[0].Score-want) > 1e-12 {
		t.Fatalf("score = %v, want %v", fused[0].Score, want)
	}

	if got := FuseRRF(nil, nil, 0.5, 10); len(got) != 0 {
		t.Fatalf("expected no results from two empty lists, got %d", len(got))
	}
}

func TestFuseRRFRespectsVectorWeight(t *testing.T) {
	vector := []model.RetrievalResult{kbResult("doc-v", 0, "vector")}
	keyword := []model.RetrievalResult{kbResult("doc-k", 0, "keyword")}

	fused := FuseRRF(vector, keyword, 0.9, 10)
	if fused[0].Metadata.DocID != "doc-v" {
		t.Fatalf("expected vector result first with weight 0.9, got %q", fused[0].Metadata.DocID)
	}

	fused = FuseRRF(vector, keyword, 0.1, 10)
	if fused[0].Metadata.DocID != "doc-k" {
		t.Fatalf("expected keyword result first with weight 0.1, got %q", fused[0].Metadata.DocID)
	}
}

func TestFuseRRFTruncatesToTopK(t *testing.T) {
	var vector []model.RetrievalResult
	for i := 0; i < 10; i++ {
		vector = append(vector, kbResult("doc", i, "chunk"))
	}

	fused := FuseRRF(vector, nil, 0.5, 3)
	if len(fused) != 3 {
		t.Fatalf("expected 3 results, got %d", len(fused))
	}
	for i := 1; i < len(fused); i++ {
		if fused[i].Score > fused[i-1].Score {
			t.Fatalf("results not in descending score order at %d", i)
		}
	}
}

func TestFuseRRFIsDeterministic(t *testing.T) {
	vector := []model.RetrievalResult{
		kbResult("doc-a", 0, "a"),
		kbResult("doc-b", 0, "b"),
		kbResult("doc-c", 0, "c"),
	}
	keyword := []model.RetrievalResult{
		kbResult("doc-c", 0, "c"),
		kbResult("doc-d", 0, "d"),
	}

	first := FuseRRF(vector, keyword, 0.5, 10)
	for i := 0; i < 50; i++ {
		again := FuseRRF(vector, keyword, 0.5, 10)
		if len(again) != len(first) {
			t.Fatalf("run %d returned %d results, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].Metadata.Key() != first[j].Metadata.Key() {
				t.Fatalf("run %d position %d = %q, want %q", i, j, again[j].Metadata.Key(), first[j].Metadata.Key())
			}
		}
	}
}
