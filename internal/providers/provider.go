package providers

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Error sentinels mirror the failure kinds the pipeline distinguishes.
var (
	// ErrTransient covers network failures, 5xx responses, and rate limits;
	// callers retry with backoff.
	ErrTransient = errors.New("transient provider error")
	// ErrPaymentRequired means the metered provider refused service; the
	// usage gate pauses the provider until its reset time.
	ErrPaymentRequired = errors.New("provider payment required")
	// ErrInvalidResponse means the provider returned something that cannot
	// be correlated back to the requested positions.
	ErrInvalidResponse = errors.New("invalid provider response")
	// ErrDailyLimitReached is raised by the usage gate before a request is
	// even attempted.
	ErrDailyLimitReached = errors.New("daily request limit reached")
)

// Item is one line of a batch, tagged with its cue position in the file.
type Item struct {
	Position int
	Line     string
}

// BatchOptions carries the advisory wrapper context around a batch. Context
// lines influence the translation but are never part of the result.
type BatchOptions struct {
	PreContext  []string
	PostContext []string
}

// Translator is the uniform provider contract.
//
// TranslateBatch may return a strict subset of the requested positions; the
// fallback engine recovers the rest. Implementations must never return a
// position that was not requested.
type Translator interface {
	Name() string
	TranslateSingle(ctx context.Context, line, sourceLang, targetLang string) (string, error)
	TranslateBatch(ctx context.Context, items []Item, sourceLang, targetLang string, opts BatchOptions) (map[int]string, error)
	Models(ctx context.Context) ([]string, error)
	Languages(ctx context.Context) ([]string, error)
}

// RetryPolicy governs transient-error retries, sourced from the retry
// settings keys.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
}

// DefaultRetryPolicy matches the settings defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 2 * time.Second, Multiplier: 2.0}
}

// classifyStatus maps an HTTP status to the provider error kinds.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusPaymentRequired:
		return ErrPaymentRequired
	case status == http.StatusTooManyRequests:
		return ErrTransient
	case status >= 500:
		return ErrTransient
	default:
		return nil
	}
}

// filterKnownPositions drops any returned position that was not requested,
// enforcing the "never invent positions" half of the contract on behalf of
// sloppy providers.
func filterKnownPositions(result map[int]string, items []Item) map[int]string {
	known := make(map[int]struct{}, len(items))
	for _, item := range items {
		known[item.Position] = struct{}{}
	}
	for position := range result {
		if _, ok := known[position]; !ok {
			delete(result, position)
		}
	}
	return result
}
