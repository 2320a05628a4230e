package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := fmt.Errorf("submit: %w", Wrap(CodeChainFailure, cause, ""))

	if got := CodeOf(err); got != CodeChainFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if RetryableError(err) {
		t.Fatalf("chain failures must not be retried")
	}
	if !ShouldAlert(err) {
		t.Fatalf("chain failures should alert")
	}
	if !stdErrors.Is(err, New(CodeChainFailure, "other")) {
		t.Fatalf("errors.Is should match by code")
	}
}

func TestUserMessage(t *testing.T) {
	cause := stdErrors.New("Move abort 0x1")
	if got := UserMessage(Wrap(CodeChainFailure, cause, "")); got != "Move abort 0x1" {
		t.Fatalf("default message should expose cause, got %q", got)
	}
	if got := UserMessage(Wrap(CodeChainFailure, cause, "submit failed")); got != "submit failed" {
		t.Fatalf("explicit message should win, got %q", got)
	}
	if got := UserMessage(stdErrors.New("plain")); got != "plain" {
		t.Fatalf("plain error message mismatch: %q", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Fatalf("nil error should be empty, got %q", got)
	}
}

func TestOverrides(t *testing.T) {
	err := New(CodeModelFailure, "rate limited", WithRetryable(false), WithAlert(false), WithSeverity(SeverityCritical), WithMetadata("provider", "openrouter"))
	if err.Retryable() || err.ShouldAlert() {
		t.Fatalf("overrides not applied")
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("severity override not applied")
	}
	if err.Metadata()["provider"] != "openrouter" {
		t.Fatalf("metadata missing")
	}
}

func TestRegisterAndFallback(t *testing.T) {
	custom := Code("CUSTOM_TEST")
	if AttributesOf(custom).Message != AttributesOf(CodeUnknown).Message {
		t.Fatalf("unregistered code should fall back to UNKNOWN")
	}
	Register(custom, Attributes{Message: "custom", Retryable: true})
	if !New(custom, "").Retryable() {
		t.Fatalf("registered attributes not applied")
	}
	found := false
	for _, c := range Codes() {
		if c == custom {
			found = true
		}
	}
	if !found {
		t.Fatalf("custom code missing from Codes()")
	}
}
