package translator

import (
	"context"
	"testing"

	"translarr/internal/providers"
)

func TestBuildContextualRepairBatchMergesRanges(t *testing.T) {
	all := cues("a", "b", "c", "d", "e", "f", "g", "h")
	batch := BuildContextualRepairBatch([]int{2, 4}, all, 1, false)
	// Ranges [1,3] and [3,5] merge: positions 1..5, each once.
	want := []int{1, 2, 3, 4, 5}
	if len(batch.Items) != len(want) {
		t.Fatalf("expected %d items, got %v", len(want), batch.Items)
	}
	for i, position := range want {
		if batch.Items[i].Position != position {
			t.Fatalf("expected position %d at index %d, got %d", position, i, batch.Items[i].Position)
		}
	}
	if len(batch.FailedPositions) != 2 {
		t.Fatalf("expected 2 failed positions, got %v", batch.FailedPositions)
	}
	if _, ok := batch.FailedPositions[2]; !ok {
		t.Fatalf("position 2 should be marked failed")
	}
}

func TestBuildContextualRepairBatchClampsEdges(t *testing.T) {
	all := cues("a", "b", "c")
	batch := BuildContextualRepairBatch([]int{0, 2}, all, 2, false)
	if len(batch.Items) != 3 {
		t.Fatalf("radius past the file edges must clamp, got %v", batch.Items)
	}
}

func TestBuildContextualRepairBatchEmpty(t *testing.T) {
	batch := BuildContextualRepairBatch(nil, cues("a"), 2, false)
	if len(batch.Items) != 0 {
		t.Fatalf("expected empty batch, got %v", batch.Items)
	}
}

func TestExecuteRepairRecoversFailedOnly(t *testing.T) {
	all := cues("a", "b", "c", "d", "e")
	p := &scriptedProvider{responses: []func([]providers.Item) (map[int]string, error){answerAll}}
	repaired, missing, err := ExecuteRepair(context.Background(), p, []int{2}, all, "en", "ro", DefaultRepairConfig())
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected full repair, missing %v", missing)
	}
	if len(repaired) != 1 {
		t.Fatalf("context translations must be discarded, got %v", repaired)
	}
	if repaired[2] != "T:c" {
		t.Fatalf("unexpected repair text %q", repaired[2])
	}
	// The provider call carried the neighborhood, not just the failed cue.
	if got := p.calls[0]; len(got) != 5 {
		t.Fatalf("expected context radius 2 to send 5 items, got %v", got)
	}
}

func TestExecuteRepairRetriesThenReportsMissing(t *testing.T) {
	all := cues("a", "b", "c")
	skip := answerExcept(1)
	responses := make([]func([]providers.Item) (map[int]string, error), 0, 16)
	for i := 0; i < 16; i++ {
		responses = append(responses, skip)
	}
	p := &scriptedProvider{responses: responses}
	cfg := DefaultRepairConfig()
	cfg.Fallback = FallbackConfig{Enabled: false}
	repaired, missing, err := ExecuteRepair(context.Background(), p, []int{1}, all, "en", "ro", cfg)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(repaired) != 0 {
		t.Fatalf("expected no repairs, got %v", repaired)
	}
	if len(missing) != 1 || missing[0] != 1 {
		t.Fatalf("expected position 1 still missing, got %v", missing)
	}
	// MaxRetries 2 means three attempts total.
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 provider calls, got %d", len(p.calls))
	}
}

func TestExecuteRepairChunksByBatchSize(t *testing.T) {
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "x"
	}
	all := cues(texts...)
	p := &scriptedProvider{responses: []func([]providers.Item) (map[int]string, error){answerAll, answerAll}}
	cfg := DefaultRepairConfig()
	cfg.BatchSize = 3
	cfg.ContextRadius = 0
	failed := []int{0, 2, 4, 6, 8}
	repaired, missing, err := ExecuteRepair(context.Background(), p, failed, all, "en", "ro", cfg)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(missing) != 0 || len(repaired) != 5 {
		t.Fatalf("expected all 5 repaired, got %v missing %v", repaired, missing)
	}
	if len(p.calls) != 2 {
		t.Fatalf("expected 2 chunked calls, got %v", p.calls)
	}
	if len(p.calls[0]) != 3 || len(p.calls[1]) != 2 {
		t.Fatalf("unexpected chunk sizes %v", p.calls)
	}
}

func TestExecuteRepairDisabled(t *testing.T) {
	cfg := DefaultRepairConfig()
	cfg.Enabled = false
	p := &scriptedProvider{}
	repaired, missing, err := ExecuteRepair(context.Background(), p, []int{1, 2}, cues("a", "b", "c"), "en", "ro", cfg)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if len(repaired) != 0 || len(missing) != 2 {
		t.Fatalf("disabled repair must pass failures through, got %v missing %v", repaired, missing)
	}
	if len(p.calls) != 0 {
		t.Fatalf("disabled repair must not call the provider")
	}
}
