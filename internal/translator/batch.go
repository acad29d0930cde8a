package translator

import (
	"translarr/internal/providers"
	"translarr/internal/subtitle"
)

// Batch is one provider call's worth of cues plus its wrapper context.
type Batch struct {
	Items []providers.Item
	Pre   []string
	Post  []string
}

// BatchConfig shapes batch construction from settings.
type BatchConfig struct {
	MaxBatchSize   int
	ContextEnabled bool
	ContextBefore  int
	ContextAfter   int
	// UsePlaintext sends markup-stripped lines to the provider instead of
	// the raw cue text.
	UsePlaintext bool
}

// BuildBatches groups the translatable items into batches of at most
// MaxBatchSize, attaching surrounding cues as advisory context. Positions are
// the cue positions within the full document, so skipped (filtered) cues
// leave holes that survive into provider calls.
func BuildBatches(all []subtitle.Cue, translatable []subtitle.Cue, cfg BatchConfig) []Batch {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	var batches []Batch
	for start := 0; start < len(translatable); start += cfg.MaxBatchSize {
		end := start + cfg.MaxBatchSize
		if end > len(translatable) {
			end = len(translatable)
		}
		chunk := translatable[start:end]
		batch := Batch{Items: make([]providers.Item, len(chunk))}
		for i, cue := range chunk {
			line := cue.Text
			if cfg.UsePlaintext {
				line = subtitle.RemoveMarkup(line)
			}
			batch.Items[i] = providers.Item{Position: cue.Position, Line: line}
		}
		if cfg.ContextEnabled {
			batch.Pre = contextLines(all, chunk[0].Position-cfg.ContextBefore, chunk[0].Position)
			last := chunk[len(chunk)-1].Position
			batch.Post = contextLines(all, last+1, last+1+cfg.ContextAfter)
		}
		batches = append(batches, batch)
	}
	return batches
}

// contextLines collects markup-stripped cue text for positions in [from, to).
func contextLines(all []subtitle.Cue, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(all) {
		to = len(all)
	}
	var lines []string
	for _, cue := range all[from:to] {
		text := subtitle.RemoveMarkup(cue.Text)
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	return lines
}
