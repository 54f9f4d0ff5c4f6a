package domain

import "errors"

// Domain errors represent error conditions in the cache gate.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("cachegate: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("cachegate: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("cachegate: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("cachegate: invalid configuration")

	// ErrInstallFailed wraps any failure of the install step.
	ErrInstallFailed = errors.New("cachegate: install failed")

	// ErrMethodNotCacheable is returned when a non-GET request is put into a store.
	ErrMethodNotCacheable = errors.New("cachegate: only GET requests can be stored")

	// ErrPartialContent is returned when a 206 response is put into a store.
	ErrPartialContent = errors.New("cachegate: partial responses cannot be stored")

	// ErrVaryWildcard is returned when a response with "Vary: *" is put into a store.
	ErrVaryWildcard = errors.New("cachegate: responses varying on * cannot be stored")

	// ErrNotOK is returned by a bulk add when a fetched response is not 2xx.
	ErrNotOK = errors.New("cachegate: response status is not ok")

	// ErrBodyUsed is returned when a response body is read a second time.
	ErrBodyUsed = errors.New("cachegate: response body already used")

	// ErrBodyIncomplete is returned by a body capture when the body was closed
	// or failed before the end of the stream.
	ErrBodyIncomplete = errors.New("cachegate: response body incomplete")
)
