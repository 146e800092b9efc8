// Package errors defines the structured error type shared by all ccb
// components. Every externally observable failure carries an ErrorCode so
// the CLI layer can map it to the right exit code.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode identifies a specific error condition.
type ErrorCode string

const (
	// Identity errors. IDENTITY_FALLBACK is recovered locally (the key is
	// derived from the unresolved path) and never surfaced to callers.
	ErrCodeIdentityFallback ErrorCode = "IDENTITY_FALLBACK"

	// Binding and registry errors
	ErrCodeBindingNotFound  ErrorCode = "BINDING_NOT_FOUND"
	ErrCodeRegistryNotFound ErrorCode = "REGISTRY_NOT_FOUND"

	// Lock errors
	ErrCodeInstanceBusy      ErrorCode = "INSTANCE_BUSY"
	ErrCodeAutoCreateBlocked ErrorCode = "AUTO_CREATE_BLOCKED"

	// Request daemon errors
	ErrCodeRequestTimeout    ErrorCode = "REQUEST_TIMEOUT"
	ErrCodeSentinelMismatch  ErrorCode = "SENTINEL_MISMATCH"
	ErrCodeDaemonUnreachable ErrorCode = "DAEMON_UNREACHABLE"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Provider errors
	ErrCodeProviderUnknown ErrorCode = "PROVIDER_UNKNOWN"
	ErrCodeNoReply         ErrorCode = "NO_REPLY"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// CCBError is a structured error with a machine-readable code and
// optional context details.
type CCBError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *CCBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface.
func (e *CCBError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail to the error.
func (e *CCBError) WithDetail(key string, value interface{}) *CCBError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON renders the error as indented JSON for verbose diagnostics.
func (e *CCBError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new CCBError.
func New(code ErrorCode, message string) *CCBError {
	return &CCBError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a CCBError.
func Wrap(err error, code ErrorCode, message string) *CCBError {
	return &CCBError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// GetCode extracts the error code from an error, unwrapping as needed.
// Returns "" for nil or non-ccb errors.
func GetCode(err error) ErrorCode {
	for err != nil {
		if ce, ok := err.(*CCBError); ok {
			return ce.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = unwrapper.Unwrap()
	}
	return ""
}

// IsExpected reports whether the error is an expected failure condition
// (exit code 2) rather than an internal error (exit code 1). Polling
// tools branch on this distinction.
func IsExpected(err error) bool {
	switch GetCode(err) {
	case ErrCodeBindingNotFound, ErrCodeRegistryNotFound,
		ErrCodeInstanceBusy, ErrCodeAutoCreateBlocked,
		ErrCodeRequestTimeout, ErrCodeNoReply:
		return true
	}
	return false
}
