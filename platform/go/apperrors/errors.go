// Package apperrors defines the error taxonomy shared by every domain service.
// Typed errors unwrap to one of the sentinels below so callers can branch with errors.Is
// and still reach the structured detail with errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes surfaced to callers.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
)

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ValidationError lists every offending field of a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// HasField reports whether the error cites the given field path or one of its elements.
func (e *ValidationError) HasField(path string) bool {
	for _, f := range e.Fields {
		if f.Path == path || strings.HasPrefix(f.Path, path+".") {
			return true
		}
	}
	return false
}

// ForbiddenError is returned for action-level or field-level ACL denials.
// Fields is populated only for write denials.
type ForbiddenError struct {
	Action string
	Fields []string
}

func (e *ForbiddenError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("forbidden: fields not writable: %s", strings.Join(e.Fields, ", "))
	}
	if e.Action != "" {
		return fmt.Sprintf("forbidden: action %q not permitted", e.Action)
	}
	return ErrForbidden.Error()
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// BadRequestError carries a client-correctable reason.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return "bad request: " + e.Reason }

func (e *BadRequestError) Unwrap() error { return ErrBadRequest }

// ConflictError carries the reason of a concurrency or uniqueness conflict.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// BadRequest is a shorthand constructor.
func BadRequest(format string, args ...any) error {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}

// Conflict is a shorthand constructor.
func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing resource name.
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}
