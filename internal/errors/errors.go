// Package errors provides the consolidated error definitions for nodepulse.
//
// This file provides:
//   - The closed Kind enumeration and its HTTP status mapping
//   - The typed Error carried across package boundaries
//   - Sentinel errors for all error conditions
//   - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Error kinds
// ============================================================================

// Kind classifies an error for callers. The set is closed; every Kind maps to
// exactly one HTTP status.
type Kind int

const (
	// KindInternal is an unexpected failure inside the process.
	KindInternal Kind = iota

	// KindValidation is a malformed, missing or out-of-range sample field.
	// The whole batch is rejected.
	KindValidation

	// KindUnprovisioned means no monitor config exists for the
	// (hostname, identity) pair. Ingestion is rejected before aggregation.
	KindUnprovisioned

	// KindStoreUnavailable is a transport failure of the Config Store or
	// the Cache Store. Retryable.
	KindStoreUnavailable

	// KindNotFound is a read of data that does not exist.
	KindNotFound
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "InternalError"
	case KindValidation:
		return "ValidationError"
	case KindUnprovisioned:
		return "UnprovisionedHost"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindNotFound:
		return "NotFound"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// HTTPStatus maps the kind to the status code returned to clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnprovisioned:
		return http.StatusForbidden
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a client may retry the same request unchanged.
func (k Kind) Retryable() bool {
	return k == KindStoreUnavailable
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindInternal, KindValidation, KindUnprovisioned, KindStoreUnavailable, KindNotFound}
}

// ============================================================================
// Typed error
// ============================================================================

// Error is a classified error that can be rendered to API clients without
// leaking store internals.
type Error struct {
	Kind    Kind
	Message string // short, client-facing
	Info    string // detail for validation errors
	Reason  string // machine-readable reason, e.g. the offending field
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Body is the JSON body returned to clients for a failed request.
type Body struct {
	Message string `json:"message"`
	Info    string `json:"info"`
	Reason  string `json:"reason"`
}

// PublicBody returns the client-facing body. Infrastructure errors never
// include the wrapped error text.
func (e *Error) PublicBody() Body {
	switch e.Kind {
	case KindStoreUnavailable, KindInternal:
		return Body{Message: e.Kind.String(), Info: e.Message}
	default:
		return Body{Message: e.Kind.String(), Info: e.Message, Reason: e.Reason}
	}
}

// New constructs a classified error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation constructs a validation error for a single field.
func Validation(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%q %s", field, reason),
		Reason:  field,
		Err:     ErrInvalidSample,
	}
}

// Unprovisioned constructs an unprovisioned-host error.
func Unprovisioned(hostname, identity string) *Error {
	return &Error{
		Kind:    KindUnprovisioned,
		Message: fmt.Sprintf("host %q is not provisioned for %s", hostname, identity),
		Reason:  "unprovisioned",
		Err:     ErrUnprovisioned,
	}
}

// StoreUnavailable wraps a transport failure of a backing store.
func StoreUnavailable(store string, err error) *Error {
	return &Error{
		Kind:    KindStoreUnavailable,
		Message: store + " unavailable",
		Err:     fmt.Errorf("%w: %w", ErrStoreUnavailable, err),
	}
}

// NotFound constructs a not-found error.
func NotFound(entityType, identifier string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s '%s' not found", entityType, identifier),
		Err:     ErrNotFound,
	}
}

// KindOf returns the kind of err. Errors that are not classified are
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidSample), errors.Is(err, ErrEmptyBatch):
		return KindValidation
	case errors.Is(err, ErrUnprovisioned):
		return KindUnprovisioned
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// AsError converts err into a classified *Error, wrapping unclassified
// errors as KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := KindOf(err)
	return &Error{Kind: kind, Message: "request failed", Err: err}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidSample    = errors.New("invalid sample")
	ErrEmptyBatch       = errors.New("invalid input, expected a non-empty array")
	ErrUnprovisioned    = errors.New("host not provisioned")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrUnknownChart     = errors.New("unknown chart")
	ErrInvalidRetention = errors.New("retention must be positive")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return KindOf(err).Retryable()
}

// ============================================================================
// Error wrapping utilities
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

// ============================================================================
// Validation collector
// ============================================================================

// ValidationErrors collects configuration problems so they can be reported
// together.
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

// AddField adds an invalid config field.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, &Error{
		Kind:    KindValidation,
		Message: field + " " + reason,
		Reason:  field,
		Err:     ErrInvalidConfig,
	})
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
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

// Unwrap exposes every collected error to errors.Is and errors.As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
