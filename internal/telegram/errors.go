package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is an unsuccessful Bot API answer.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: error %d", e.Method, e.Code)
	}
	return fmt.Sprintf("%s: error %d: %s", e.Method, e.Code, e.Description)
}

// RetryDelay is the wait Telegram asked for, zero when it named none.
func (e *APIError) RetryDelay() time.Duration { return e.RetryAfter }

// IsUnauthorized reports whether err means the bot token was rejected.
// Retrying such an error can never succeed.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusUnauthorized
}

// IsConflict reports whether Telegram refused the call because another
// consumer (a second poller or a registered webhook) holds the update stream.
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusConflict
}
