package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeclined is returned when an operator declines a confirmation gate
var ErrDeclined = errors.New("declined by operator")

// ErrSessionExpired means the platform rejected an established session
var ErrSessionExpired = errors.New("session expired")

// SessionError is a request refused for authentication after the session
// was established. The session must be re-acquired before collecting again.
type SessionError struct {
	Op     string
	Status int
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: gateway status %d: %v", e.Op, e.Status, ErrSessionExpired)
}

func (e *SessionError) Unwrap() error { return ErrSessionExpired }

// AuthError means a session could not be established. It is fatal.
type AuthError struct {
	Account  string
	Attempts int
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication for %q failed after %d attempts: %v", e.Account, e.Attempts, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CollectionError is a failed structured query
type CollectionError struct {
	Op          string
	RateLimited bool
	RetryAfter  time.Duration // zero when the platform gave no hint
	Err         error
}

func (e *CollectionError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// PageError is a failed page automation action, including timeouts
type PageError struct {
	Action   string
	Selector string
	Err      error
}

func (e *PageError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("page %s (%s): %v", e.Action, e.Selector, e.Err)
	}
	return fmt.Sprintf("page %s: %v", e.Action, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// PolicyError means the response policy failed or returned a placeholder
type PolicyError struct {
	ItemID string
	Reason string
	Err    error
}

func (e *PolicyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("response policy for %s: %s: %v", e.ItemID, e.Reason, e.Err)
	}
	return fmt.Sprintf("response policy for %s: %s", e.ItemID, e.Reason)
}

func (e *PolicyError) Unwrap() error { return e.Err }

// ValidationError is a raw record that cannot be normalized
type ValidationError struct {
	ItemID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid item %q: %s: %s", e.ItemID, e.Field, e.Reason)
}

// IsRateLimited reports whether err carries a rate-limit signal
func IsRateLimited(err error) bool {
	var ce *CollectionError
	return errors.As(err, &ce) && ce.RateLimited
}

// IsSessionExpired reports whether err means the session must be renewed
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsFatal reports whether err should terminate the run
func IsFatal(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
