package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// backoffDelay returns the exponential backoff delay for the given attempt:
// base * 2^attempt, capped at max.
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// retryAfterDelay returns the server-suggested Retry-After delay if present,
// otherwise the fallback. Either way the result is capped at max.
func retryAfterDelay(headers http.Header, fallback, max time.Duration) time.Duration {
	delay := fallback

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil && seconds >= 0 {
			delay = time.Duration(seconds * float64(time.Second))
		}
	}

	if delay > max {
		return max
	}
	return delay
}

// sleepContext blocks for the given delay, honoring context cancellation.
func sleepContext(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-time.After(delay):
		return nil
	}
}
