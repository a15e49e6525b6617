package models

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers. Precondition failures carry the specific
// reason so the UI can render it without string matching.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyInGame    = "ALREADY_IN_GAME"
	CodeNotFriends       = "NOT_FRIENDS"
	CodeSelfRequest      = "SELF_REQUEST"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// AppError is the application error type. Code is machine-readable; Message
// is user-facing.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed input. No state was mutated.
func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// NewNotFoundError reports a referenced document that no longer exists,
// usually a benign race with a concurrent delete.
func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// NewPreconditionError reports an operation aborted before any write.
func NewPreconditionError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewStoreError wraps a failed document store call.
func NewStoreError(err error) *AppError {
	return &AppError{Code: CodeStoreUnavailable, Message: "Document store unavailable", Err: err}
}

// ErrorCode extracts the AppError code, or "" for foreign errors.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	return ErrorCode(err) == CodeNotFound
}
