package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(CodeNetwork, "dial failed")
	if !strings.Contains(err.Error(), "[NETWORK]") {
		t.Errorf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("expected message, got %q", err.Error())
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, CodeInternal, "wrapped")

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !strings.Contains(err.Error(), "caused by: boom") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestWithMetadata(t *testing.T) {
	err := New(CodeQuotaExceeded, "quota").WithMetadata("endpoint", "live")
	if err.Metadata["endpoint"] != "live" {
		t.Errorf("metadata not set: %v", err.Metadata)
	}
	if !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("metadata missing from message: %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"app error", New(CodeMicPermission, "denied"), CodeMicPermission},
		{"foreign error", stderrors.New("plain"), CodeUnknown},
		{"wrapped", Wrap(stderrors.New("x"), CodeDecodeFailed, "bad payload"), CodeDecodeFailed},
		{"rewrapped by fmt", fmt.Errorf("handshake: %w", New(CodeInvalidCredential, "rejected")), CodeInvalidCredential},
		{"doubly wrapped", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", New(CodeTimeout, "slow"))), CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.expected {
				t.Errorf("CodeOf() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
	}{
		{CodeNetwork, true},
		{CodeTimeout, true},
		{CodeSynthesisUnavailable, true},
		{CodeConfigMissing, false},
		{CodeInvalidCredential, false},
		{CodeQuotaExceeded, false},
		{CodeMicPermission, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := IsRetryable(New(tt.code, "x")); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.code, got, tt.retryable)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		code     Code
		contains string
	}{
		{CodeConfigMissing, "API key is required"},
		{CodeMicPermission, "microphone"},
		{CodeInvalidCredential, "invalid or has expired"},
		{CodeNetwork, "internet connection"},
		{CodeQuotaExceeded, "quota"},
		{CodeInternal, "try again later"},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			msg := UserMessage(New(tt.code, "raw"))
			if !strings.Contains(msg, tt.contains) {
				t.Errorf("UserMessage(%v) = %q, want substring %q", tt.code, msg, tt.contains)
			}
		})
	}
}
