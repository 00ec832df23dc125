package apierr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/screenshot-api/internal/logger"
)

func TestNew(t *testing.T) {
	err := New(ErrSystemUnavailable, "queue offline", http.StatusServiceUnavailable)
	if err.Code != ErrSystemUnavailable {
		t.Errorf("expected code %s, got %s", ErrSystemUnavailable, err.Code)
	}
	if err.Message != "queue offline" {
		t.Errorf("expected message 'queue offline', got '%s'", err.Message)
	}
	if err.Status() != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, err.Status())
	}
}

func TestErrorInterface(t *testing.T) {
	err := New(ErrAuthInvalid, "invalid token", http.StatusUnauthorized)
	expected := "AUTH_INVALID: invalid token"
	if err.Error() != expected {
		t.Errorf("expected error string %s, got %s", expected, err.Error())
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	err := ValidationInvalidValue("url", "url must start with http:// or https://").
		WithRequestID("req-123")

	WriteError(w, err)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Detail != "url must start with http:// or https://" {
		t.Errorf("unexpected detail %q", resp.Detail)
	}
	if resp.Error == nil {
		t.Fatal("expected error in response")
	}
	if resp.Error.Code != ErrValidationInvalidValue {
		t.Errorf("expected code %s, got %s", ErrValidationInvalidValue, resp.Error.Code)
	}
	if resp.Error.Details["field"] != "url" {
		t.Errorf("expected field 'url', got %v", resp.Error.Details["field"])
	}
	if resp.Error.RequestID != "req-123" {
		t.Errorf("expected request ID 'req-123', got '%s'", resp.Error.RequestID)
	}
}

func TestWriteErrorWithContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/screenshot/status/abc", nil)
	r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, "req-ctx"))
	w := httptest.NewRecorder()

	WriteErrorWithContext(w, r, JobNotFound("abc"))

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp.Error.RequestID != "req-ctx" {
		t.Errorf("expected request id from context, got %q", resp.Error.RequestID)
	}
	if resp.Error.Details["task_id"] != "abc" {
		t.Errorf("expected task_id detail, got %v", resp.Error.Details)
	}
}

func TestHelperFunctions(t *testing.T) {
	tests := []struct {
		name       string
		createErr  func() *Error
		wantCode   ErrorCode
		wantStatus int
	}{
		{"AuthMissing", func() *Error { return AuthMissing("") }, ErrAuthMissing, http.StatusUnauthorized},
		{"AuthInvalid", func() *Error { return AuthInvalid("") }, ErrAuthInvalid, http.StatusUnauthorized},
		{"JobNotFound", func() *Error { return JobNotFound("id") }, ErrJobNotFound, http.StatusNotFound},
		{"MethodNotAllowed", MethodNotAllowed, ErrResourceNotAllowed, http.StatusMethodNotAllowed},
		{"RenderFailed", func() *Error { return RenderFailed("id", "") }, ErrRenderFailed, http.StatusInternalServerError},
		{"CacheReadFailed", func() *Error { return CacheReadFailed("") }, ErrCacheReadFail, http.StatusInternalServerError},
		{"SystemInternal", func() *Error { return SystemInternal("") }, ErrSystemInternal, http.StatusInternalServerError},
		{"SystemUnavailable", func() *Error { return SystemUnavailable("") }, ErrSystemUnavailable, http.StatusServiceUnavailable},
		{"ValidationInvalidJSON", func() *Error { return ValidationInvalidJSON() }, ErrValidationInvalidJSON, http.StatusBadRequest},
		{"ValidationInvalidValue", func() *Error { return ValidationInvalidValue("quality", "") }, ErrValidationInvalidValue, http.StatusBadRequest},
		{"ValidationBodyTooLarge", func() *Error { return ValidationBodyTooLarge(1024) }, ErrValidationTooLarge, http.StatusRequestEntityTooLarge},
		{"ResourceNotFound", func() *Error { return ResourceNotFound("route") }, ErrResourceNotFound, http.StatusNotFound},
		{"RateLimitGlobal", func() *Error { return RateLimitGlobal() }, ErrRateLimitGlobal, http.StatusTooManyRequests},
		{"RateLimitIP", func() *Error { return RateLimitIP() }, ErrRateLimitIP, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.createErr()
			if err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, err.Code)
			}
			if err.Status() != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, err.Status())
			}
			if err.Message == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}

func TestRenderFailedKeepsMessage(t *testing.T) {
	err := RenderFailed("id", "navigate: net::ERR_NAME_NOT_RESOLVED")
	if err.Message != "navigate: net::ERR_NAME_NOT_RESOLVED" {
		t.Errorf("unexpected message %q", err.Message)
	}
}
