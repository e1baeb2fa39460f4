package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy decides whether a failed call is worth another attempt.
type RetryPolicy func(err error) bool

// RetryTransient retries transport failures, HTTP 408/429 and 5xx, and
// nothing else. A circuit-open rejection is never retried.
func RetryTransient(err error) bool {
	var open *ErrCircuitOpen
	if errors.As(err, &open) {
		return false
	}
	var status *ErrHTTPStatus
	if errors.As(err, &status) {
		return status.Code == 408 || status.Code == 429 || status.Code >= 500
	}
	var perr *ErrPanic
	return !errors.As(err, &perr)
}

// WithRetry retries failed calls with exponential backoff, using
// RetryTransient as policy.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return WithRetryPolicy(maxRetries, baseBackoff, RetryTransient, logger)
}

// WithRetryPolicy retries calls for which policy returns true, doubling
// baseBackoff after each attempt. Context cancellation stops retrying.
// logger may be nil.
func WithRetryPolicy(maxRetries int, baseBackoff time.Duration, policy RetryPolicy, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil || !policy(err) || attempt == maxRetries {
					return nil, lastErr
				}

				wait := baseBackoff * (1 << uint(attempt))
				if logger != nil {
					logger.WarnContext(ctx, "connectivity: retrying call",
						"attempt", attempt+1,
						"max_retries", maxRetries,
						"backoff_ms", wait.Milliseconds(),
						"error", err)
				}
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil, lastErr
				case <-t.C:
				}
			}
			return nil, lastErr
		}
	}
}
