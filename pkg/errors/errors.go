// Package errors provides structured error types for cppsbom.
//
// Every failure that crosses a package boundary carries a machine-readable
// [Code] so the CLI can pick an exit message and the HTTP server can pick a
// status code without string matching.
//
// # Error Codes
//
// Codes follow a coarse naming convention:
//   - INVALID_*: input validation failures (references, manifests, paths)
//   - NOT_FOUND: a requested file, scan or document does not exist
//   - STRATEGY_FAILED / EXTERNAL_TOOL / TIMEOUT: detection failures
//   - STORAGE / INTERNAL: cache, archive and unexpected failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidReference, "empty version in %q", ref)
//	if errors.Is(err, errors.ErrCodeInvalidReference) {
//	    // reject the requirement
//	}
//
//	err := errors.Wrap(errors.ErrCodeExternalTool, origErr, "conan graph info")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidReference Code = "INVALID_REFERENCE"
	ErrCodeInvalidManifest  Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath      Code = "INVALID_PATH"
	ErrCodeInvalidFormat    Code = "INVALID_FORMAT"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Detection errors
	ErrCodeStrategyFailed Code = "STRATEGY_FAILED"
	ErrCodeExternalTool   Code = "EXTERNAL_TOOL"
	ErrCodeTimeout        Code = "TIMEOUT"

	// Internal errors
	ErrCodeStorage     Code = "STORAGE"
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error code to the HTTP status the server answers with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidReference, ErrCodeInvalidManifest,
		ErrCodeInvalidPath, ErrCodeInvalidFormat:
		return 400
	case ErrCodeNotFound, ErrCodeFileNotFound:
		return 404
	case ErrCodeTimeout:
		return 504
	case ErrCodeUnsupported:
		return 501
	default:
		return 500
	}
}
