package remote

import "errors"

var (
	// ErrNotFound indicates the upstream entity does not exist (HTTP 404).
	ErrNotFound = errors.New("remote: not found")

	// ErrUnavailable indicates the service kept failing after all retry
	// attempts (timeouts, connection errors, 5xx responses).
	ErrUnavailable = errors.New("remote: service unavailable")
)
