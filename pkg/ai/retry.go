package ai

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultRetryInterval = 500 * time.Millisecond

// generateWithRetry retries transient generation failures with exponential
// backoff. Context cancellation stops retrying immediately.
func generateWithRetry(ctx context.Context, gen TextGenerator, attempts int, interval time.Duration, systemPrompt, userPrompt string) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	return backoff.Retry(ctx, func() (string, error) {
		return gen.GenerateText(ctx, systemPrompt, userPrompt)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(attempts)))
}
