// Package faults provides the classified error taxonomy shared by generation, remote command,
// content API and deployment code.
package faults

import (
	"errors"
	"fmt"
)

// Type represents a category of failure that callers branch on.
type Type int8

const (
	// TypeNetwork represents transport-level failures (dial, reset, timeout, 429/5xx). Potentially transient.
	TypeNetwork Type = iota
	// TypeMalformedResponse represents generator output that is not JSON or fails schema validation.
	TypeMalformedResponse
	// TypeAuthentication represents a remote target or provider rejecting credentials.
	TypeAuthentication
	// TypeRemoteCommand represents a remote command exiting non-zero.
	TypeRemoteCommand
	// TypeAPI represents a non-2xx response from an HTTP API other than 401.
	TypeAPI
	// TypeInternal represents unexpected faults inside this process (recovered panics, invariant breaks).
	TypeInternal
)

// String returns the string representation of the error type.
func (t Type) String() string {
	switch t {
	case TypeNetwork:
		return "network"
	case TypeMalformedResponse:
		return "malformed_response"
	case TypeAuthentication:
		return "authentication"
	case TypeRemoteCommand:
		return "remote_command"
	case TypeAPI:
		return "api"
	case TypeInternal:
		return "internal"
	default:
		return "invalid"
	}
}

// Error represents a classified failure.
//
//nolint:govet // Field grouping follows meaning, not alignment
type Error struct {
	Err        error  // Wrapped underlying error
	Message    string // Human-readable error message
	Type       Type   // Classified error type
	StatusCode int    // HTTP status code if applicable
	Body       string // Response body (API errors), truncated
	Command    string // Remote command (remote command errors)
	Stderr     string // Captured stderr (remote command errors)
	ExitCode   int    // Remote exit status (remote command errors)
}

// maxBodyLen bounds the response body kept on API errors.
const maxBodyLen = 2048

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Type == TypeRemoteCommand:
		msg := fmt.Sprintf("%s error: command %q exited with status %d", e.Type, e.Command, e.ExitCode)
		if e.Stderr != "" {
			msg += ": " + e.Stderr
		}
		return msg
	case e.Type == TypeAPI && e.StatusCode != 0:
		if e.Message != "" {
			return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s error (status %d)", e.Type, e.StatusCode)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("%s error", e.Type)
	}
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a caller may reasonably retry. Only network faults qualify.
func (e *Error) IsRetryable() bool {
	return e.Type == TypeNetwork
}

// Is checks if an error is of a specific type.
func Is(err error, t Type) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Type == t
	}
	return false
}

// TypeOf returns the type of a classified error. ok is false for unclassified errors.
func TypeOf(err error) (t Type, ok bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Type, true
	}
	return TypeInternal, false
}

// Label returns a metrics-friendly label for any error ("" for nil, "unclassified" for plain errors).
func Label(err error) string {
	if err == nil {
		return ""
	}
	if t, ok := TypeOf(err); ok {
		return t.String()
	}
	return "unclassified"
}

// IsRetryable reports whether err is a retryable classified error.
func IsRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.IsRetryable()
}

// New creates a classified error.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a classified error wrapping cause.
func Wrap(t Type, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// Network creates a network fault.
func Network(cause error, message string) *Error {
	return Wrap(TypeNetwork, cause, message)
}

// Malformed creates a malformed-response fault.
func Malformed(cause error, message string) *Error {
	return Wrap(TypeMalformedResponse, cause, message)
}

// Auth creates an authentication fault.
func Auth(cause error, message string) *Error {
	return Wrap(TypeAuthentication, cause, message)
}

// Internal creates an internal fault.
func Internal(cause error, message string) *Error {
	return Wrap(TypeInternal, cause, message)
}

// RemoteCommand creates a remote command fault carrying the command and its stderr.
func RemoteCommand(command, stderr string, exitCode int, cause error) *Error {
	return &Error{
		Type:     TypeRemoteCommand,
		Err:      cause,
		Command:  command,
		Stderr:   stderr,
		ExitCode: exitCode,
	}
}

// API creates an API fault carrying status and (truncated) body.
func API(statusCode int, body, message string) *Error {
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}
	if message == "" {
		message = body
	}
	return &Error{
		Type:       TypeAPI,
		StatusCode: statusCode,
		Body:       body,
		Message:    message,
	}
}

// WithStatus sets the HTTP status on a classified error and returns it.
func (e *Error) WithStatus(statusCode int) *Error {
	e.StatusCode = statusCode
	return e
}
