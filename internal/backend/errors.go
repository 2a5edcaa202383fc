package backend

import (
	"errors"
	"fmt"

	"subforge/internal/retry"
)

// ErrAuthenticationMissing is returned before any network call when a
// variant has no credentials configured.
var ErrAuthenticationMissing = errors.New("backend credentials missing")

// ErrResultUnparseable wraps responses the core cannot turn into cues.
var ErrResultUnparseable = errors.New("backend result unparseable")

// Error is a classified backend failure. Transient failures (429, 5xx,
// timeouts) are retried by the caller's policy, everything else surfaces
// immediately.
type Error struct {
	Backend    string
	StatusCode int
	Message    string
	Transient  bool
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend failed with status %d: %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s backend failed: %s", e.Backend, e.Message)
}

// statusError builds an Error from an HTTP status, classifying 429 and 5xx
// as transient.
func statusError(backendID string, status int, message string) *Error {
	return &Error{
		Backend:    backendID,
		StatusCode: status,
		Message:    message,
		Transient:  status == 429 || status >= 500,
	}
}

// IsRetryable classifies errors for the retry executor: transient backend
// failures and network-level timeouts/unreachability, nothing else.
func IsRetryable(err error) bool {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Transient
	}
	return retry.IsTransient(err)
}
