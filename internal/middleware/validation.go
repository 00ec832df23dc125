package middleware

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/onnwee/screenshot-api/internal/apierr"
)

// MaxRequestBodySize bounds request bodies. Screenshot requests are a few
// hundred bytes of JSON.
const MaxRequestBodySize = 64 * 1024

// LimitRequestBody caps bodies of POST, PUT and PATCH requests at limit bytes.
// A declared Content-Length over the limit is refused up front; otherwise the
// body reader fails once the limit is crossed.
func LimitRequestBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				if r.ContentLength > limit {
					apierr.WriteErrorWithContext(w, r, apierr.ValidationBodyTooLarge(limit))
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeString trims whitespace, drops invalid UTF-8 and truncates to
// maxLength bytes without splitting a rune.
func SanitizeString(input string, maxLength int) string {
	input = strings.TrimSpace(input)
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	if len(input) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}
	return input
}
