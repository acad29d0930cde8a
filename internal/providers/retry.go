package providers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs op, retrying transient failures with exponential backoff per
// the policy. Non-transient errors abort immediately.
func withRetry(ctx context.Context, policy RetryPolicy, op func() error) error {
	if policy.MaxRetries <= 0 {
		return op()
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.Delay
	if expo.InitialInterval <= 0 {
		expo.InitialInterval = time.Second
	}
	if policy.Multiplier > 1 {
		expo.Multiplier = policy.Multiplier
	}
	expo.MaxElapsedTime = 0

	attempt := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy64 := uint64(policy.MaxRetries)
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(expo, policy64), ctx))
}
