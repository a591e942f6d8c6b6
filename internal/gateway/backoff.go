package gateway

import (
	"context"
	"fmt"
	"time"
)

// RetryWithBackoff calls fn up to attempts times, doubling the pause after each
// failure starting from initial. It is the bounded alternative to the
// paginator's open-ended 429 retry.
func RetryWithBackoff(ctx context.Context, attempts int, initial time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if serr := sleepCtx(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
