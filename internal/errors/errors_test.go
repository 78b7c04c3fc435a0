package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCategoryValidation, CodeMissingIdentifier, "event has no identifier")
	want := "[VALIDATION:MISSING_IDENTIFIER] event has no identifier"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	cause := errors.New("disk full")
	wrapped := Wrap(ErrCategoryStore, CodeWriteFailed, "append failed", cause)
	want = "[STORE:WRITE_FAILED] append failed: disk full"
	if wrapped.Error() != want {
		t.Errorf("expected %q, got %q", want, wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCategoryStore, CodeStoreUnavailable, "store down", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := New(ErrCategoryValidation, CodeMissingTimestamp, "no timestamp")
	target := New(ErrCategoryValidation, CodeMissingTimestamp, "different message")

	if !errors.Is(err, target) {
		t.Error("expected errors with same category and code to match")
	}

	other := New(ErrCategoryValidation, CodeMissingIdentifier, "no id")
	if errors.Is(err, other) {
		t.Error("expected errors with different codes not to match")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		category ErrorCategory
		code     string
		want     bool
	}{
		{ErrCategoryStore, CodeStoreUnavailable, true},
		{ErrCategoryStore, CodeWriteFailed, true},
		{ErrCategoryStore, CodeScanFailed, false},
		{ErrCategoryValidation, CodeMissingIdentifier, false},
		{ErrCategoryInvariant, CodeDuplicateSurvived, false},
		{ErrCategoryConfig, CodeInvalidThreshold, false},
	}

	for _, c := range cases {
		err := New(c.category, c.code, "test")
		if IsRetryable(err) != c.want {
			t.Errorf("%s:%s retryable = %v, want %v", c.category, c.code, IsRetryable(err), c.want)
		}
	}
}

func TestRetryableThroughWrapping(t *testing.T) {
	inner := New(ErrCategoryStore, CodeStoreUnavailable, "store down")
	outer := fmt.Errorf("ingest batch 42: %w", inner)

	if !IsRetryable(outer) {
		t.Error("expected retryable flag to survive fmt.Errorf wrapping")
	}
	if GetCategory(outer) != ErrCategoryStore {
		t.Errorf("expected STORE category, got %s", GetCategory(outer))
	}
	if GetCode(outer) != CodeStoreUnavailable {
		t.Errorf("expected STORE_UNAVAILABLE code, got %s", GetCode(outer))
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(NewValidationError(CodeMalformedRecord, "bad record")) {
		t.Error("expected validation error to be classified as validation")
	}
	if IsValidation(NewInvariantError(CodeAggregateMismatch, "sum mismatch")) {
		t.Error("invariant error misclassified as validation")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewValidationError(CodeUnknownEventType, "bad type")
	detailed := err.WithDetails(map[string]interface{}{"event_type": "refund"})

	if detailed.Details["event_type"] != "refund" {
		t.Error("expected details to be attached")
	}
	if err.Details != nil {
		t.Error("expected original error to be unmodified")
	}
}
