package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotAuthenticated is returned when an operation requires a signed-in session.
	ErrNotAuthenticated = errors.New("application: not authenticated")
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrNoRefreshToken is returned when a refresh is requested without a stored refresh token.
	ErrNoRefreshToken = errors.New("application: no refresh token available")
	// ErrSnapshotCorrupt is returned when persisted session state cannot be decoded.
	ErrSnapshotCorrupt = errors.New("application: session snapshot corrupt")
)

// ValidationError captures field level validation issues that callers can surface to users.
// Validation failures are detected locally and never reach the booking service.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
