package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		exposed   bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, exposed: true, detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, exposed: true},
		{code: CodeConflict, status: http.StatusConflict, exposed: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, exposed: true, detailsOK: true},
		{code: CodeLinkExpired, status: http.StatusGone, exposed: true, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, exposed: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.ExposeMessage != tt.exposed {
			t.Fatalf("code %s expected expose %v got %v", tt.code, tt.exposed, meta.ExposeMessage)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestPublicMessageHidesServerSideText(t *testing.T) {
	if got := New(CodeLinkExpired, "payment link expired").PublicMessage(); got != "payment link expired" {
		t.Fatalf("expected exposed message, got %q", got)
	}
	if got := New(CodeNotFound, "").PublicMessage(); got != "resource not found" {
		t.Fatalf("expected fallback for empty message, got %q", got)
	}
	if got := Wrapf(CodeDependency, stdErrors.New("dial"), "%s request failed", "checkout").PublicMessage(); got != "dependency unavailable" {
		t.Fatalf("dependency text must stay private, got %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Wrap(CodeDependency, stdErrors.New("503"), "status")) {
		t.Fatalf("dependency errors are retryable")
	}
	if IsRetryable(New(CodeValidation, "bad")) {
		t.Fatalf("validation errors are not retryable")
	}
	if !IsRetryable(stdErrors.New("plain")) {
		t.Fatalf("uncoded errors count as internal")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "order status request failed")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !strings.Contains(wrapped.Error(), "boom") {
		t.Fatalf("expected cause in message, got %q", wrapped.Error())
	}
}

func TestIsCodeFollowsWrapping(t *testing.T) {
	err := fmt.Errorf("resume: %w", New(CodeLinkExpired, "gone"))
	if !IsCode(err, CodeLinkExpired) {
		t.Fatalf("expected link expired code through fmt wrapping")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil should never match")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeRateLimit, "slow down")
	if got := As(err); got == nil || got.Code() != CodeRateLimit {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
