package screenshot

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// MaxURLLength is the longest url accepted, in bytes.
const MaxURLLength = 2048

// Field names reported by ValidationError, matching the request's wire names.
const (
	FieldURL       = "url"
	FieldView      = "view"
	FieldQuality   = "quality"
	FieldWaitTime  = "wait_time"
	FieldWaitUntil = "wait_until"
)

// ValidationError is returned for client input that can never succeed; callers must not retry it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks r and returns a *ValidationError naming the first offending field.
func Validate(r Request) error {
	if err := validateURL(r.URL); err != nil {
		return err
	}
	if _, ok := r.View.Viewport(); !ok {
		return &ValidationError{Field: FieldView, Reason: "must be 'desktop' or 'mobile'"}
	}
	if r.Quality < 1 || r.Quality > 100 {
		return &ValidationError{Field: FieldQuality, Reason: "must be between 1 and 100"}
	}
	if r.WaitTime < 0 {
		return &ValidationError{Field: FieldWaitTime, Reason: "must not be negative"}
	}
	if !r.WaitUntil.valid() {
		return &ValidationError{Field: FieldWaitUntil, Reason: "must be one of load, domcontentloaded, networkidle"}
	}
	return nil
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{Field: FieldURL, Reason: "is required"}
	}
	if len(raw) > MaxURLLength {
		return &ValidationError{Field: FieldURL, Reason: fmt.Sprintf("must be at most %d bytes", MaxURLLength)}
	}
	if !utf8.ValidString(raw) {
		return &ValidationError{Field: FieldURL, Reason: "must be valid UTF-8"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: FieldURL, Reason: "is not a valid URL"}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return &ValidationError{Field: FieldURL, Reason: "must start with http:// or https://"}
	}
	if u.Host == "" {
		return &ValidationError{Field: FieldURL, Reason: "must include a host"}
	}
	return nil
}
