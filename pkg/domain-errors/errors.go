// Package dErrors defines coded domain errors shared across services.
//
// Stores and infrastructure return pkg/platform/sentinel errors; services
// translate those into coded domain errors so transports can map codes to
// status codes without inspecting error strings.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain error.
type Code string

const (
	// CodeInvalidInput marks validation failures on caller-supplied data.
	// Rejected before any write happens.
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest marks malformed requests (undecodable body, bad types).
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks references to records that do not exist or are not
	// visible to the calling organization.
	CodeNotFound Code = "not_found"

	// CodeAppendOnly marks attempted mutation of an immutable record family.
	// Always rejected, never silently ignored.
	CodeAppendOnly Code = "append_only_violation"

	// CodeUnavailable marks a temporarily unavailable collaborator.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks unexpected failures. Descriptions are not exposed
	// to clients for this code.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a stable code and human-readable description.
type Error struct {
	ErrCode     Code
	Description string
	wrapped     error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrCode, e.Description, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Description)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// New constructs a domain error with the given code and description.
func New(code Code, description string) *Error {
	return &Error{ErrCode: code, Description: description}
}

// Wrap constructs a domain error that wraps an underlying cause. The cause
// participates in errors.Is/errors.As chains.
func Wrap(code Code, description string, err error) *Error {
	return &Error{ErrCode: code, Description: description, wrapped: err}
}

// CodeOf extracts the domain error code, or CodeInternal for unrecognized
// errors so unknown failures never leak details.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.ErrCode
	}
	return CodeInternal
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.ErrCode == code
	}
	return false
}
