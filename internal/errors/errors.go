// Package errors defines the sentinel errors shared across the snapshot
// updater, plus small helpers for wrapping and category checks.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Download errors
	ErrHTTPStatus     = errors.New("unexpected HTTP status")
	ErrRetryExhausted = errors.New("retries exhausted")
	ErrEmptyResponse  = errors.New("empty response body")

	// Snapshot content errors
	ErrEmptyFile        = errors.New("empty file")
	ErrTooFewFiles      = errors.New("too few files in milieu directory")
	ErrMissingTimestamp = errors.New("sector data has no timestamp line")
	ErrNameCollision    = errors.New("disambiguated name already in use")
	ErrBadUniverse      = errors.New("invalid universe data")
	ErrBadMetadata      = errors.New("invalid sector metadata")
	ErrPositionMismatch = errors.New("metadata position does not match universe")
	ErrNameMismatch     = errors.New("metadata name does not match universe")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Run coordination errors
	ErrAlreadyRunning = errors.New("another update is already running")
	ErrLockFailed     = errors.New("failed to acquire run lock")

	// Git errors
	ErrGitFailed  = errors.New("git command failed")
	ErrNotGitRepo = errors.New("not a git repository")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// ============================================================================
// Category helpers
// ============================================================================

// IsValidation reports whether err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// retryStatusCodes are the HTTP status codes worth retrying. 409 is
// included because the upstream occasionally returns it for requests that
// succeed on a later attempt.
var retryStatusCodes = map[int]bool{
	408: true, // Request Timeout
	409: true, // Conflict
	425: true, // Too Early
	429: true, // Too Many Requests
	500: true, // Internal Server Error
	502: true, // Bad Gateway
	503: true, // Service Unavailable
	504: true, // Gateway Timeout
	509: true, // Bandwidth Limit Exceeded
}

// IsRetriableStatus reports whether an HTTP status code is transient.
func IsRetriableStatus(code int) bool {
	return retryStatusCodes[code]
}

// StatusError describes a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

// Unwrap makes errors.Is(err, ErrHTTPStatus) work.
func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}

// Retriable reports whether the status code is worth retrying.
func (e *StatusError) Retriable() bool {
	return IsRetriableStatus(e.Code)
}

// NewStatusError creates a StatusError for a response.
func NewStatusError(url string, code int) error {
	return &StatusError{URL: url, Code: code}
}

// ============================================================================
// Wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
