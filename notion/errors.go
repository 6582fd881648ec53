package notion

import (
	"errors"

	apperrors "github.com/sweetpotato0/notion-agent/errors"
)

// Messages surfaced to the model verbatim.
const (
	msgNotInitialized = "Notion client not initialized."
	msgMissingParent  = "Either parent_db_id or parent_page_id must be provided."
)

// ErrNotInitialized is returned by every operation of a client built without
// an API key.
var ErrNotInitialized = &Error{Kind: apperrors.ErrNotInitialized, Message: msgNotInitialized}

// Error is the failure value of a workspace operation. Kind is one of the
// sentinels in the errors package.
type Error struct {
	Kind    error
	Message string
	Details string
	// Status, Code and Body are set when the Notion API answered with an
	// error object.
	Status int
	Code   string
	Body   string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// Envelope is the structured error handed to tool callers instead of a Go
// error. Callers check the error key before treating a response as data.
type Envelope struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// EnvelopeOf converts any error into an Envelope.
func EnvelopeOf(err error) Envelope {
	var e *Error
	if errors.As(err, &e) {
		return Envelope{Error: e.Message, Details: e.Details}
	}
	return Envelope{Error: err.Error()}
}

// apiError is the error object returned by the Notion API.
type apiError struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func invalidInput(msg string) *Error {
	return &Error{Kind: apperrors.ErrInvalidInput, Message: msg}
}

// withDetails copies err and attaches an operation description plus the raw
// API response when there is one.
func withDetails(err error, details string) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: apperrors.ErrUpstream, Message: err.Error(), Details: details}
	}
	out := *e
	out.Details = details
	if e.Body != "" {
		out.Details += " Notion API response: " + e.Body
	}
	return &out
}
