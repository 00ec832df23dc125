package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLimitRequestBody(t *testing.T) {
	const limit = 32
	var readErr error
	handler := LimitRequestBody(limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		method     string
		body       string
		unknownLen bool
		wantStatus int
		wantErr    bool
	}{
		{"get passes", http.MethodGet, "", false, http.StatusOK, false},
		{"small post", http.MethodPost, `{"url":"https://a.b"}`, false, http.StatusOK, false},
		{"declared too large", http.MethodPost, strings.Repeat("x", limit+1), false, http.StatusRequestEntityTooLarge, false},
		{"streamed too large", http.MethodPost, strings.Repeat("x", limit+1), true, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readErr = nil
			var body io.Reader
			if tt.body != "" {
				body = bytes.NewBufferString(tt.body)
			}
			req := httptest.NewRequest(tt.method, "/screenshot", body)
			if tt.unknownLen {
				req.ContentLength = -1
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if (readErr != nil) != tt.wantErr {
				t.Errorf("read error = %v, wantErr %v", readErr, tt.wantErr)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input     string
		maxLength int
		expected  string
	}{
		{"  https://example.com  ", 40, "https://example.com"},
		{"verylongstringthatexceedslimit", 10, "verylongst"},
		{"normal text", 50, "normal text"},
		{"", 10, ""},
		{"   ", 10, ""},
		{"héllo", 2, "h"},
		{"bad\xffbyte", 20, "badbyte"},
	}

	for _, tt := range tests {
		if got := SanitizeString(tt.input, tt.maxLength); got != tt.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.input, tt.maxLength, got, tt.expected)
		}
	}
}
