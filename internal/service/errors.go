package service

import "errors"

var (
	// ErrUnauthorized means the request carried no token or a token that
	// resolves to no session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStorageUnavailable means the metadata store could not serve the
	// request. Surfaced as a server error, never retried here.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError rejects a malformed request and names the offending
// field. The Reason is safe to show to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
