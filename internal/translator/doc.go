// Package translator holds the resilience layer between the pipeline and a
// provider: batch construction with wrapper context, graduated chunk-split
// fallback for partially answered batches, the deferred file-level repair
// pass, and the typed error kinds the worker boundary maps to request state.
package translator
