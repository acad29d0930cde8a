package translator

import (
	"testing"

	"translarr/internal/subtitle"
)

func cues(texts ...string) []subtitle.Cue {
	out := make([]subtitle.Cue, len(texts))
	for i, text := range texts {
		out[i] = subtitle.Cue{Position: i, Text: text}
	}
	return out
}

func TestBuildBatchesChunksAndPositions(t *testing.T) {
	all := cues("a", "b", "c", "d", "e")
	translatable := []subtitle.Cue{all[0], all[2], all[3], all[4]} // position 1 filtered out
	batches := BuildBatches(all, translatable, BatchConfig{MaxBatchSize: 3})
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0].Items) != 3 || len(batches[1].Items) != 1 {
		t.Fatalf("unexpected batch sizes %d/%d", len(batches[0].Items), len(batches[1].Items))
	}
	if batches[0].Items[1].Position != 2 {
		t.Fatalf("filtered cue must leave a position hole, got %d", batches[0].Items[1].Position)
	}
}

func TestBuildBatchesWrapperContext(t *testing.T) {
	all := cues("one", "two", "three", "four", "five", "six")
	translatable := all[2:4]
	cfg := BatchConfig{MaxBatchSize: 10, ContextEnabled: true, ContextBefore: 2, ContextAfter: 2}
	batches := BuildBatches(all, translatable, cfg)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	b := batches[0]
	if len(b.Pre) != 2 || b.Pre[0] != "one" || b.Pre[1] != "two" {
		t.Fatalf("unexpected pre context %v", b.Pre)
	}
	if len(b.Post) != 2 || b.Post[0] != "five" || b.Post[1] != "six" {
		t.Fatalf("unexpected post context %v", b.Post)
	}
}

func TestBuildBatchesContextClampsAtEdges(t *testing.T) {
	all := cues("a", "b", "c")
	cfg := BatchConfig{MaxBatchSize: 10, ContextEnabled: true, ContextBefore: 5, ContextAfter: 5}
	batches := BuildBatches(all, all, cfg)
	b := batches[0]
	if len(b.Pre) != 0 || len(b.Post) != 0 {
		t.Fatalf("context at file edges must clamp, pre %v post %v", b.Pre, b.Post)
	}
}

func TestBuildBatchesPlaintext(t *testing.T) {
	all := cues("<i>styled</i>")
	batches := BuildBatches(all, all, BatchConfig{MaxBatchSize: 10, UsePlaintext: true})
	if got := batches[0].Items[0].Line; got != "styled" {
		t.Fatalf("plaintext mode must strip markup, got %q", got)
	}
}

func TestBuildBatchesDefaultSize(t *testing.T) {
	texts := make([]string, 120)
	for i := range texts {
		texts[i] = "x"
	}
	all := cues(texts...)
	batches := BuildBatches(all, all, BatchConfig{})
	if len(batches) != 3 {
		t.Fatalf("expected default batch size 50 to yield 3 batches, got %d", len(batches))
	}
	if len(batches[0].Items) != 50 || len(batches[2].Items) != 20 {
		t.Fatalf("unexpected chunking %d/%d", len(batches[0].Items), len(batches[2].Items))
	}
}

func TestBuildBatchesEmptyInput(t *testing.T) {
	if got := BuildBatches(nil, nil, BatchConfig{}); got != nil {
		t.Fatalf("expected no batches for empty input, got %v", got)
	}
}
