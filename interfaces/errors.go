package interfaces

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed or out-of-range input detected before
// any network call. It is always fatal to the current command.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PrecursorError reports a missing prerequisite: a certificate, key, CA
// bundle, input document, or an upstream public key that could not be fetched.
type PrecursorError struct {
	Resource string
	Err      error
}

func (e *PrecursorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Resource, e.Err)
}

func (e *PrecursorError) Unwrap() error { return e.Err }

// TransportError reports a TLS handshake, network, or HTTP-layer failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError is a well-formed non-2xx response from the service. Status
// holds the service-provided status payload verbatim when the body carried one.
type ServiceError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *ServiceError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("service returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Status)
	}
	return fmt.Sprintf("service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

var (
	// ErrFileNotFound is the cause of a PrecursorError for an absent file.
	ErrFileNotFound = errors.New("file does not exist")

	// ErrEncryptedPrivateKey is returned for passphrase-protected client keys.
	// Prompting for a passphrase is not supported.
	ErrEncryptedPrivateKey = errors.New("encrypted private key is not supported")

	// ErrImportKeyUnavailable is returned when the service import public key
	// could not be fetched for an ENCRYPTED submission.
	ErrImportKeyUnavailable = errors.New("unable to fetch service import public key")

	// ErrNoResult is returned by callers that require a response body when a
	// recoverable transport produced none.
	ErrNoResult = errors.New("request produced no result")
)

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPrecursor reports whether err is (or wraps) a PrecursorError.
func IsPrecursor(err error) bool {
	var pe *PrecursorError
	return errors.As(err, &pe)
}
