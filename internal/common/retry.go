package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
	// ErrUnauthorized indicates that the upstream rejected the credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// permanentErrors never succeed on a second attempt unless explicitly marked
// transient.
var permanentErrors = []error{
	ErrUnauthorized,
	ErrTokenRefresh,
	ErrNotFound,
	ErrInvalidRegion,
	ErrInvalidRequest,
	ErrMissingConfig,
	ErrInvalidConfig,
	context.Canceled,
}

// RetryableStatus reports whether an HTTP status is worth another attempt:
// 408, 429 and every 5xx.
func RetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

// ClassifyStatus marks err according to the HTTP status it came with. A 429
// is also tagged ErrRateLimit so WithRetry backs off fully, and 401/403 are
// tagged ErrUnauthorized.
func ClassifyStatus(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return Transient(fmt.Errorf("%w: %w", ErrRateLimit, err))
	case RetryableStatus(status):
		return Transient(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Permanent(fmt.Errorf("%w: %w", ErrUnauthorized, err))
	default:
		return Permanent(err)
	}
}

func isPermanent(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return !retryableErr.Retryable
	}
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry executes an operation with configurable retry behavior.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if isPermanent(err) {
			return err
		}

		// Special handling for rate limits
		if errors.Is(err, ErrRateLimit) {
			delay = opts.MaxDelay
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			// Exponential backoff with jitter
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}

	return ErrMaxRetries
}
