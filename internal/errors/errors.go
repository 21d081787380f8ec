// Package errors provides unified error handling with structured error codes
// shared across the session, capture, and playback layers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for routing and user-facing reporting.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeConfigMissing     // required credential/config absent; no retry
	CodeMicPermission     // microphone access denied by user/OS
	CodeMicUnavailable    // no usable input device
	CodeNetwork           // transient transport failure
	CodeInvalidCredential // remote rejected the API key
	CodeQuotaExceeded     // remote quota exhausted; not transient
	CodeDecodeFailed      // malformed transport-safe payload
	CodeAudioFormat       // PCM payload with invalid framing
	CodeSynthesisUnavailable
	CodeTimeout
	CodeCancelled
)

var codeNames = map[Code]string{
	CodeUnknown:              "UNKNOWN",
	CodeInternal:             "INTERNAL",
	CodeConfigMissing:        "CONFIG_MISSING",
	CodeMicPermission:        "MIC_PERMISSION",
	CodeMicUnavailable:       "MIC_UNAVAILABLE",
	CodeNetwork:              "NETWORK",
	CodeInvalidCredential:    "INVALID_CREDENTIAL",
	CodeQuotaExceeded:        "QUOTA_EXCEEDED",
	CodeDecodeFailed:         "DECODE_FAILED",
	CodeAudioFormat:          "AUDIO_FORMAT",
	CodeSynthesisUnavailable: "SYNTHESIS_UNAVAILABLE",
	CodeTimeout:              "TIMEOUT",
	CodeCancelled:            "CANCELLED",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code carried by err or anything it wraps, or
// CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeTimeout, CodeSynthesisUnavailable:
		return true
	default:
		return false
	}
}

// UserMessage renders a human-readable message for the session error callback.
func UserMessage(err error) string {
	switch CodeOf(err) {
	case CodeConfigMissing:
		return "An API key is required, but it has not been configured."
	case CodeMicPermission:
		return "Failed to get microphone access. Please allow microphone permission and try again."
	case CodeMicUnavailable:
		return "No usable microphone was found. Please connect an input device and try again."
	case CodeInvalidCredential:
		return "The configured API key is invalid or has expired."
	case CodeNetwork:
		return "Network connection error. Please check your internet connection and try again."
	case CodeQuotaExceeded:
		return "You have exceeded your API quota. Please check your usage limits."
	default:
		return "A connection error occurred. Please try again later."
	}
}
