package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrorCodeIllegalState     ErrorCode = "ILLEGAL_STATE"
	ErrorCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeConflict         ErrorCode = "CONFLICT"
	ErrorCodeInternal         ErrorCode = "INTERNAL"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DomainError struct {
	Code    ErrorCode
	Message string
	Details []FieldError
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports a match when target is a *DomainError with the same code,
// so errors.Is(err, ErrNotFound) works for any not-found error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(ErrorCodeValidation, fmt.Sprintf(format, args...))
}

func NewIllegalStateError(format string, args ...any) *DomainError {
	return NewDomainError(ErrorCodeIllegalState, fmt.Sprintf(format, args...))
}

func NewPermissionError(format string, args ...any) *DomainError {
	return NewDomainError(ErrorCodePermissionDenied, fmt.Sprintf(format, args...))
}

func NewNotFoundError(entity, id string) *DomainError {
	return NewDomainError(ErrorCodeNotFound, fmt.Sprintf("%s %q not found", entity, id))
}

func NewConflictError(format string, args ...any) *DomainError {
	return NewDomainError(ErrorCodeConflict, fmt.Sprintf(format, args...))
}

var (
	ErrValidation       = NewDomainError(ErrorCodeValidation, "validation failed")
	ErrIllegalState     = NewDomainError(ErrorCodeIllegalState, "illegal state")
	ErrPermissionDenied = NewDomainError(ErrorCodePermissionDenied, "permission denied")
	ErrNotFound         = NewDomainError(ErrorCodeNotFound, "not found")
	ErrConflict         = NewDomainError(ErrorCodeConflict, "conflict")
)

// CodeOf returns the code of the first DomainError in the chain, or
// ErrorCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrorCodeInternal
}
