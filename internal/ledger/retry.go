package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryInitial = 20 * time.Millisecond
)

type retryPolicy struct {
	maxAttempts uint
	initial     time.Duration
}

func (p retryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = 10 * p.initial
	return b
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// maxAttempts is reached. The last error is returned unchanged.
func withRetry[T any](ctx context.Context, p retryPolicy, logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	var (
		attempt   int
		permanent error
	)
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !isRetryable(err) {
			permanent = err
			return v, backoff.Permanent(err)
		}
		logger.WarnContext(ctx, "ledger retry",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return v, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(p.maxAttempts))
	if permanent != nil {
		return res, permanent
	}
	return res, err
}
