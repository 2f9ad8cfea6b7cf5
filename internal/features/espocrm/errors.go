package espocrm

import (
	"errors"
	"fmt"
)

// ErrNoActiveConfig is returned by strict call paths (CLI, admin API) when no
// active EspoCRM configuration exists. Best-effort paths translate it into a
// silent skip instead.
var ErrNoActiveConfig = errors.New("no active EspoCRM configuration found")

// ErrSyncDisabled signals that the active configuration forbids the requested
// operation (direction, sync toggle or webhook toggle). No remote call is made
// and no sync log is written for a disabled operation.
var ErrSyncDisabled = errors.New("synchronization disabled by configuration")

// ErrSignatureInvalid is the fail-closed result of webhook signature checks.
var ErrSignatureInvalid = errors.New("webhook signature verification failed")

// AuthError reports a rejected authentication or a malformed token response.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "EspoCRM authentication failed: " + e.Message
}

// RequestError wraps a transport failure or non-2xx response from the remote
// API, keeping the method/endpoint context for the caller's log entry.
type RequestError struct {
	Method   string
	Endpoint string
	Status   int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("EspoCRM request %s %s failed: %v", e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("EspoCRM request %s %s failed with status %d", e.Method, e.Endpoint, e.Status)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed webhook payload or missing sync
// parameters. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
