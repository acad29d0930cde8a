package translator

import (
	"context"

	"translarr/internal/providers"
	"translarr/internal/subtitle"
)

// RepairConfig shapes the deferred file-level repair pass that runs after all
// regular batches completed.
type RepairConfig struct {
	Enabled bool
	// ContextRadius is the number of neighboring cues on each side of a
	// failed position that are sent along as context.
	ContextRadius int
	// MaxRetries caps how many times a repair chunk is re-sent.
	MaxRetries int
	// BatchSize chunks the repair set for provider calls.
	BatchSize int
	// UsePlaintext mirrors the batch setting.
	UsePlaintext bool
	Fallback     FallbackConfig
}

// DefaultRepairConfig matches the settings defaults.
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{
		Enabled:       true,
		ContextRadius: 2,
		MaxRetries:    2,
		BatchSize:     20,
		UsePlaintext:  false,
		Fallback:      DefaultFallbackConfig(),
	}
}

// RepairBatch is a repair provider call: the failed positions plus their
// surrounding cues, with overlapping neighborhoods merged so a shared
// neighbor appears once.
type RepairBatch struct {
	Items []providers.Item
	// FailedPositions identifies which items actually need a translation;
	// the rest are context carried inline.
	FailedPositions map[int]struct{}
}

// BuildContextualRepairBatch assembles the repair payload for the failed
// positions. Each position contributes the cues in [pos-radius, pos+radius];
// overlapping ranges merge. The returned batch is empty when failed is.
func BuildContextualRepairBatch(failed []int, all []subtitle.Cue, radius int, usePlaintext bool) RepairBatch {
	if radius < 0 {
		radius = 0
	}
	failedSet := make(map[int]struct{}, len(failed))
	include := make(map[int]struct{})
	for _, position := range failed {
		failedSet[position] = struct{}{}
		for p := position - radius; p <= position+radius; p++ {
			if p >= 0 && p < len(all) {
				include[p] = struct{}{}
			}
		}
	}
	batch := RepairBatch{FailedPositions: failedSet}
	for _, position := range sortedPositions(include) {
		line := all[position].Text
		if usePlaintext {
			line = subtitle.RemoveMarkup(line)
		}
		batch.Items = append(batch.Items, providers.Item{Position: position, Line: line})
	}
	return batch
}

// ExecuteRepair runs the deferred repair for the failed positions, chunked by
// BatchSize and retried up to MaxRetries per chunk. The returned map only
// contains originally failed positions; translations the provider happens to
// return for context cues are discarded. The second return lists positions
// that stayed untranslated.
func ExecuteRepair(
	ctx context.Context,
	provider providers.Translator,
	failed []int,
	all []subtitle.Cue,
	sourceLang, targetLang string,
	cfg RepairConfig,
) (map[int]string, []int, error) {
	repaired := make(map[int]string, len(failed))
	if !cfg.Enabled || len(failed) == 0 {
		return repaired, append([]int(nil), failed...), nil
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var stillMissing []int
	for start := 0; start < len(failed); start += batchSize {
		end := start + batchSize
		if end > len(failed) {
			end = len(failed)
		}
		chunkFailed := failed[start:end]

		pending := append([]int(nil), chunkFailed...)
		for try := 0; try <= retries && len(pending) > 0; try++ {
			if err := ctx.Err(); err != nil {
				return repaired, append(stillMissing, pending...), err
			}
			repairBatch := BuildContextualRepairBatch(pending, all, cfg.ContextRadius, cfg.UsePlaintext)
			result, _, err := TranslateWithFallback(ctx, provider, Batch{Items: repairBatch.Items}, sourceLang, targetLang, cfg.Fallback)
			if err != nil {
				return repaired, append(stillMissing, pending...), err
			}
			var next []int
			for _, position := range pending {
				text, ok := result[position]
				if !ok {
					next = append(next, position)
					continue
				}
				repaired[position] = text
			}
			pending = next
		}
		stillMissing = append(stillMissing, pending...)
	}
	return repaired, stillMissing, nil
}
