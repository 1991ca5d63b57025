package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultAttempts = 3

// permanentError marks a failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// backoff is the wait before retry number attempt (1-based)
var backoff = func(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// withRetry calls fn up to attempts times, sleeping between failures
func withRetry(ctx context.Context, logger *zap.Logger, provider string, attempts int, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := fn(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return "", perm.err
		}

		logger.Warn("Failed to generate content, retrying",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return "", lastErr
}
