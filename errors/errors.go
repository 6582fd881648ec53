package errors

import "errors"

// Sentinel errors classifying failures across the agent and workspace layers.
// Concrete error values wrap one of these so callers can use errors.Is.
var (
	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized indicates a capability was disabled at startup,
	// typically because its credential was not configured.
	ErrNotInitialized = errors.New("not initialized")

	// ErrUpstream indicates the workspace API rejected or failed a request
	ErrUpstream = errors.New("upstream api error")

	// ErrConnection indicates the tool-serving session could not be established
	ErrConnection = errors.New("connection error")
)
