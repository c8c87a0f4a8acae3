package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies a discovery failure. AuthenticationError and
// ConfigurationError are terminal; the remaining classes are retried.
type ErrorType string

const (
	NetworkError        ErrorType = "NetworkError"
	TimeoutError        ErrorType = "TimeoutError"
	AuthenticationError ErrorType = "AuthenticationError"
	ValidationError     ErrorType = "ValidationError"
	ConfigurationError  ErrorType = "ConfigurationError"
	ServerError         ErrorType = "ServerError"
	UnknownError        ErrorType = "UnknownError"
)

// Retryable reports whether failures of this class should be retried.
func (t ErrorType) Retryable() bool {
	switch t {
	case AuthenticationError, ConfigurationError:
		return false
	}
	return true
}

// StatusString is the administrator-facing status for this error class.
func (t ErrorType) StatusString() string {
	switch t {
	case NetworkError:
		return "connection_error"
	case TimeoutError:
		return "timeout"
	case AuthenticationError:
		return "auth_error"
	case ValidationError:
		return "validation_error"
	default:
		return "error"
	}
}

// Error is a classified discovery failure.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified discovery error.
func NewError(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// TypeOf extracts the error class from err, classifying common transport
// failures when err is not already a discovery error.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return TimeoutError
		}
		return NetworkError
	}
	return UnknownError
}

// classifyStatus maps a non-2xx discovery response to an error class.
func classifyStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return AuthenticationError
	case status == 408 || status == 429:
		return TimeoutError
	case status >= 500:
		return ServerError
	case status >= 400:
		return ValidationError
	default:
		return UnknownError
	}
}
