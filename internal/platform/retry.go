// Package platform holds small process-level helpers shared by the bot
// runtime: bounded retries and crash-safe file writes.
package platform

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// MaxRetryDelay caps a single wait between attempts, including waits
// requested by the server.
var MaxRetryDelay = 30 * time.Second

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry stops at once and
// returns the cause.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// delayer is implemented by errors carrying a server-requested wait, such
// as a Bot API 429 answer with retry_after.
type delayer interface {
	RetryDelay() time.Duration
}

// Retry calls fn up to maxAttempts times. The wait after attempt n is
// baseDelay * 2^n, stretched to any delay the error asks for and capped at
// MaxRetryDelay. An error wrapped with Permanent ends the loop early.
// maxAttempts <= 0 never calls fn and returns nil.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		return nil
	}
	var lastErr error
	for attempt := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := backoff(baseDelay, attempt, lastErr)
		slog.Warn("retry attempt failed",
			"component", "platform",
			"operation", "retry",
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", lastErr,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	slog.Warn("retries exhausted",
		"component", "platform",
		"operation", "retry",
		"max_attempts", maxAttempts,
		"error", lastErr,
	)
	return lastErr
}

func backoff(base time.Duration, attempt int, err error) time.Duration {
	delay := base << attempt
	var d delayer
	if errors.As(err, &d) && d.RetryDelay() > delay {
		delay = d.RetryDelay()
	}
	if delay > MaxRetryDelay || delay < 0 {
		delay = MaxRetryDelay
	}
	return delay
}
