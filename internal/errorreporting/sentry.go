package errorreporting

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

type scrubRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// PII patterns to scrub from error messages
var piiRules = []scrubRule{
	// Email addresses
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[REDACTED]"},
	// Bearer tokens
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`), "[REDACTED]"},
	// API keys and tokens
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret)["\s:=]+[a-zA-Z0-9_-]{16,}`), "[REDACTED]"},
	// Credentials in target URL query strings, parameter name kept
	{regexp.MustCompile(`(?i)([?&](?:access_token|token|key|sig|signature|password|auth)=)[^&\s"]+`), "${1}[REDACTED]"},
	// IP addresses
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[REDACTED]"},
	// Credit card numbers (basic pattern)
	{regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "[REDACTED]"},
}

var enabled atomic.Bool

// Options configures Sentry. An empty DSN disables reporting.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Init initializes Sentry error reporting
func Init(opts Options) error {
	if opts.DSN == "" {
		// Sentry is not configured, return without error
		enabled.Store(false)
		return nil
	}
	if err := ValidateDSN(opts.DSN); err != nil {
		return err
	}
	if opts.Release == "" {
		opts.Release = "dev"
	}
	if opts.SampleRate <= 0 || opts.SampleRate > 1 {
		opts.SampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       opts.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	enabled.Store(true)
	return nil
}

// beforeSend is called before sending events to Sentry
// It scrubs PII and sanitizes sensitive data
func beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
	}

	if event.Message != "" {
		event.Message = scrubPII(event.Message)
	}

	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}

	for key, value := range event.Tags {
		event.Tags[key] = scrubPII(value)
	}

	// Remove sensitive request data
	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
			delete(event.Request.Headers, "X-Api-Key")
		}
		// Screenshot target URLs travel in the query string
		event.Request.QueryString = ""
		event.Request.Data = ""
	}

	return event
}

// scrubPII removes personally identifiable information from strings
func scrubPII(text string) string {
	result := text
	for _, rule := range piiRules {
		result = rule.pattern.ReplaceAllString(result, rule.replacement)
	}
	return result
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureErrorWithContext captures an error with additional context
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}

		// Extras are scrubbed by beforeSend
		for k, v := range extras {
			scope.SetExtra(k, v)
		}

		sentry.CaptureException(err)
	})
}

// Flush waits for all events to be sent to Sentry
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// AddBreadcrumb adds a breadcrumb for debugging context
func AddBreadcrumb(category, message string, level sentry.Level) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   scrubPII(message),
		Level:     level,
		Timestamp: time.Now(),
	})
}

// ScrubPII exposes the PII scrubbing function for external use
func ScrubPII(text string) string {
	return scrubPII(text)
}

// IsSentryEnabled returns true once Init succeeded with a DSN
func IsSentryEnabled() bool {
	return enabled.Load()
}

// ValidateDSN checks if the provided DSN is valid
func ValidateDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "https://") && !strings.HasPrefix(dsn, "http://") {
		return fmt.Errorf("invalid Sentry DSN format")
	}
	return nil
}
