// Package apperrors defines the error taxonomy shared by every Atrium component.
//
// Components wrap one of the sentinel errors below with %w and callers branch with
// errors.Is. Raw driver errors never cross a package boundary; the storage package
// translates them first.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed or missing input
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a record does not exist or the caller cannot see it
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint would be violated
	ErrDuplicate = errors.New("duplicate resource")

	// ErrInvalidReference is returned when a foreign key points at nothing
	ErrInvalidReference = errors.New("invalid reference")

	// ErrExpiredInvite is returned when an invite token is valid but its window has passed
	ErrExpiredInvite = errors.New("invite expired")

	// ErrForbidden is returned when an authenticated caller lacks a required permission
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when a state transition guard fails
	ErrConflict = errors.New("conflict")

	// ErrInternal is returned for unclassified failures
	ErrInternal = errors.New("internal error")
)

var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrDuplicate,
	ErrInvalidReference,
	ErrExpiredInvite,
	ErrForbidden,
	ErrConflict,
	ErrInternal,
}

// Validation returns an ErrValidation with a formatted detail message
func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

// NotFound returns an ErrNotFound with a formatted detail message
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// Duplicate returns an ErrDuplicate with a formatted detail message
func Duplicate(format string, args ...interface{}) error {
	return wrap(ErrDuplicate, format, args...)
}

// InvalidReference returns an ErrInvalidReference with a formatted detail message
func InvalidReference(format string, args ...interface{}) error {
	return wrap(ErrInvalidReference, format, args...)
}

// Expired returns an ErrExpiredInvite with a formatted detail message
func Expired(format string, args ...interface{}) error {
	return wrap(ErrExpiredInvite, format, args...)
}

// Forbidden returns an ErrForbidden with a formatted detail message
func Forbidden(format string, args ...interface{}) error {
	return wrap(ErrForbidden, format, args...)
}

// Conflict returns an ErrConflict with a formatted detail message
func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy sentinel err belongs to, or ErrInternal when it is unclassified
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// IsClassified reports whether err carries one of the taxonomy sentinels other than ErrInternal
func IsClassified(err error) bool {
	if err == nil {
		return false
	}
	return Kind(err) != ErrInternal
}

var codes = map[error]string{
	ErrValidation:       "validation",
	ErrNotFound:         "not_found",
	ErrDuplicate:        "duplicate",
	ErrInvalidReference: "invalid_reference",
	ErrExpiredInvite:    "expired_invite",
	ErrForbidden:        "forbidden",
	ErrConflict:         "conflict",
	ErrInternal:         "internal",
}

// Code returns a stable machine-readable name for err's kind, or "" for nil.
// Used as a metrics label and in API error bodies.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return codes[Kind(err)]
}
