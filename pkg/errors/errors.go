package errors

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorCode represents different types of application errors
type ErrorCode string

const (
	// Identity errors
	ErrNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"

	// Local store errors
	ErrStorageFault ErrorCode = "STORAGE_FAULT"

	// Remote metadata store errors
	ErrRemoteFault ErrorCode = "REMOTE_FAULT"

	// Blob transport errors
	ErrTransportFault ErrorCode = "TRANSPORT_FAULT"

	// Lookup errors
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Validation errors
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Concurrency errors
	ErrSyncInFlight ErrorCode = "SYNC_IN_FLIGHT"

	// Generic errors
	ErrUnknown ErrorCode = "UNKNOWN"
)

// AppError represents an application-specific error with user-friendly messaging
type AppError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	UserMessage string    `json:"user_message"`
	Cause       error     `json:"-"` // Don't serialize the underlying error
	Timestamp   time.Time `json:"timestamp"`
	Retryable   bool      `json:"retryable"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// New creates a new application error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		UserMessage: userFriendlyMessage(code, message),
		Timestamp:   time.Now(),
		Retryable:   isRetryable(code),
	}
}

// Wrap wraps an existing error with application error context
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Code returns the error code of err, or ErrUnknown for foreign errors.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrUnknown
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}

// IsNotAuthenticated reports whether err is a NOT_AUTHENTICATED error.
func IsNotAuthenticated(err error) bool {
	return Code(err) == ErrNotAuthenticated
}

// IsRetryable reports whether err is worth retrying on a later push or pull.
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable
	}
	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	return false
}

// Classify attempts to classify a generic error into an AppError
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, return as-is
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	errStr := strings.ToLower(err.Error())

	// Context errors
	if err == context.DeadlineExceeded {
		return Wrap(err, ErrTransportFault, "Operation timed out")
	}
	if err == context.Canceled {
		return Wrap(err, ErrTransportFault, "Operation was canceled")
	}

	// Network errors map to the remote side of the system
	if _, ok := err.(net.Error); ok {
		return Wrap(err, ErrRemoteFault, "Network error occurred")
	}

	// Local store errors
	if strings.Contains(errStr, "database") || strings.Contains(errStr, "sql") {
		if strings.Contains(errStr, "no rows") {
			return Wrap(err, ErrNotFound, "Record not found")
		}
		return Wrap(err, ErrStorageFault, "Local store error")
	}

	// Filesystem errors surfaced by the upload pipeline
	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "file not found") {
		return Wrap(err, ErrNotFound, "File not found")
	}

	return Wrap(err, ErrUnknown, "An unexpected error occurred")
}

// userFriendlyMessage returns a user-facing message for the error code
func userFriendlyMessage(code ErrorCode, originalMessage string) string {
	switch code {
	case ErrNotAuthenticated:
		return "You are not signed in. Please sign in and try again."
	case ErrStorageFault:
		return "A local storage error occurred. Please try again."
	case ErrRemoteFault:
		return "Could not reach the cloud. Your changes were kept locally and will sync later."
	case ErrTransportFault:
		return "The upload failed. Please check your connection and try again."
	case ErrNotFound:
		return "The requested item was not found."
	case ErrInvalidInput:
		return "The provided input is invalid. Please check it and try again."
	case ErrSyncInFlight:
		return "A sync is already running for this space."
	default:
		if originalMessage != "" {
			return originalMessage
		}
		return "An unexpected error occurred. Please try again."
	}
}

// isRetryable determines whether an error class is resolvable by a later
// push or pull pass. Nothing is retried automatically; pending entries
// wait for the next user-triggered sync.
func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrStorageFault, ErrRemoteFault, ErrSyncInFlight:
		return true
	}
	return false
}
