package translator

import (
	"context"
	"errors"
	"sort"

	"translarr/internal/providers"
	"translarr/internal/subtitle"
)

// FallbackConfig governs the graduated chunk splitting of C-grade batches.
type FallbackConfig struct {
	// Enabled gates the split retries entirely; when false a partial batch
	// is returned as-is with its missing positions.
	Enabled bool
	// MaxSplitAttempts caps the split rounds. Attempt k re-sends the still
	// missing positions in k roughly equal chunks: full retry, then halves,
	// then thirds.
	MaxSplitAttempts int
}

// DefaultFallbackConfig matches the settings defaults.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{Enabled: true, MaxSplitAttempts: 3}
}

// TranslateWithFallback sends the batch and chases missing positions with
// graduated splits. It returns the collected translations and the positions
// that remained missing after all attempts. The result never contains a
// position outside the batch and never overwrites an earlier success.
//
// Hard provider failures (transient exhaustion, payment required) abort with
// an error; missing positions alone never do.
func TranslateWithFallback(
	ctx context.Context,
	provider providers.Translator,
	batch Batch,
	sourceLang, targetLang string,
	cfg FallbackConfig,
) (map[int]string, []int, error) {
	opts := providers.BatchOptions{PreContext: batch.Pre, PostContext: batch.Post}

	result, err := provider.TranslateBatch(ctx, batch.Items, sourceLang, targetLang, opts)
	if err != nil {
		if errors.Is(err, providers.ErrInvalidResponse) {
			// An unparseable reply is equivalent to a fully missing batch;
			// the splits below may still recover it.
			result = map[int]string{}
		} else {
			return nil, nil, err
		}
	}
	collected := make(map[int]string, len(batch.Items))
	merge(collected, result)

	missing := missingPositions(batch.Items, collected)
	if len(missing) == 0 || !cfg.Enabled {
		return collected, missing, nil
	}

	byPosition := make(map[int]providers.Item, len(batch.Items))
	for _, item := range batch.Items {
		byPosition[item.Position] = item
	}

	attempts := cfg.MaxSplitAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 1; attempt <= attempts && len(missing) > 0; attempt++ {
		if err := ctx.Err(); err != nil {
			return collected, missing, err
		}
		retryItems := make([]providers.Item, len(missing))
		for i, position := range missing {
			retryItems[i] = byPosition[position]
		}
		for _, chunk := range splitChunks(retryItems, attempt) {
			if err := ctx.Err(); err != nil {
				return collected, missingPositions(batch.Items, collected), err
			}
			chunkResult, err := provider.TranslateBatch(ctx, chunk, sourceLang, targetLang, opts)
			if err != nil {
				if errors.Is(err, providers.ErrInvalidResponse) {
					continue
				}
				return collected, missingPositions(batch.Items, collected), err
			}
			merge(collected, chunkResult)
		}
		missing = missingPositions(batch.Items, collected)
	}
	return collected, missing, nil
}

// merge copies src entries into dst, keeping the first successful result for
// a position and dropping entries that are empty once markup is stripped.
func merge(dst, src map[int]string) {
	for position, text := range src {
		if _, done := dst[position]; done {
			continue
		}
		if subtitle.RemoveMarkup(text) == "" {
			continue
		}
		dst[position] = text
	}
}

// missingPositions lists batch positions without a usable translation, in
// input order.
func missingPositions(items []providers.Item, collected map[int]string) []int {
	var missing []int
	for _, item := range items {
		if _, ok := collected[item.Position]; !ok {
			missing = append(missing, item.Position)
		}
	}
	return missing
}

// splitChunks divides items into parts roughly equal chunks, preserving
// order.
func splitChunks(items []providers.Item, parts int) [][]providers.Item {
	if parts <= 1 || len(items) <= 1 {
		return [][]providers.Item{items}
	}
	if parts > len(items) {
		parts = len(items)
	}
	chunks := make([][]providers.Item, 0, parts)
	size := len(items) / parts
	extra := len(items) % parts
	start := 0
	for i := 0; i < parts; i++ {
		end := start + size
		if i < extra {
			end++
		}
		chunks = append(chunks, items[start:end])
		start = end
	}
	return chunks
}

// sortedPositions returns the keys of a position set in ascending order.
func sortedPositions(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for position := range set {
		out = append(out, position)
	}
	sort.Ints(out)
	return out
}
