package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrModeConflict is returned when a transport other than the one in
	// use, or other than the configured mode, is opened.
	ErrModeConflict = errors.New("transport mode conflict")
	// ErrMissingToken is returned by New when no credential is configured.
	ErrMissingToken = errors.New("missing bot token")
	// ErrIncompleteWebhook marks a webhook bot whose listener or public URL
	// settings are unusable.
	ErrIncompleteWebhook = errors.New("incomplete webhook configuration")
	// ErrClosed is returned by operations on a closed supervisor.
	ErrClosed = errors.New("supervisor closed")
	// ErrAborted is returned when a transport is opened outside a start,
	// typically because Abort or Stop ran while getMe was in flight.
	ErrAborted = errors.New("start aborted")
)

// ConfigError is a configuration problem detected before or instead of
// starting a transport.
type ConfigError struct {
	Bot string
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("supervisor: %s: %s: %v", e.Bot, e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CredentialConflictError refuses a second live instance for one token.
type CredentialConflictError struct {
	Bot    string
	Holder string
}

func (e *CredentialConflictError) Error() string {
	return fmt.Sprintf("supervisor: %s: token already in use by bot %q", e.Bot, e.Holder)
}
