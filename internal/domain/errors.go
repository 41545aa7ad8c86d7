package domain

import "errors"

// Error kinds. Callers classify failures with errors.Is so the surface
// layer can tell "check credentials" apart from "check network".
var (
	// ErrValidation marks input rejected before any network call.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks a signed request the remote side rejected with a
	// nonzero status code. Retrying with the same signature will fail
	// identically, so these are never retried.
	ErrAuth = errors.New("authentication error")

	// ErrTransport marks connect, TLS, or timeout failures.
	ErrTransport = errors.New("transport error")

	// ErrRemote marks a mid-stream or REST error frame from the remote
	// service after authentication succeeded.
	ErrRemote = errors.New("remote service error")

	// ErrNotFound marks operations against a nonexistent session or
	// document.
	ErrNotFound = errors.New("not found")
)
