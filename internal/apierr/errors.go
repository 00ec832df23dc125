package apierr

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/screenshot-api/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// AUTH_ - Authentication and authorization errors
	ErrAuthMissing ErrorCode = "AUTH_MISSING"
	ErrAuthInvalid ErrorCode = "AUTH_INVALID"

	// JOB_ - Render job errors
	ErrJobNotFound   ErrorCode = "JOB_NOT_FOUND"
	ErrRenderFailed  ErrorCode = "RENDER_FAILED"
	ErrCacheReadFail ErrorCode = "CACHE_READ_FAILED"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"
	ErrValidationTooLarge     ErrorCode = "VALIDATION_BODY_TOO_LARGE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	ErrResourceNotAllowed ErrorCode = "RESOURCE_METHOD_NOT_ALLOWED"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	status    int            // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper. Detail repeats the
// message for clients that only read the flat field.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Error  *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Detail: err.Message, Error: err}); encErr != nil {
		logger.Warn("Failed to encode error response", "code", err.Code, "error", encErr)
	}
}

// AuthMissing creates an authentication missing error
func AuthMissing(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(ErrAuthMissing, message, http.StatusUnauthorized)
}

// AuthInvalid creates an invalid authentication error
func AuthInvalid(message string) *Error {
	if message == "" {
		message = "Invalid authentication credentials"
	}
	return New(ErrAuthInvalid, message, http.StatusUnauthorized)
}

// JobNotFound is returned for job ids that were never issued or have expired.
func JobNotFound(jobID string) *Error {
	return New(ErrJobNotFound, "Task not found", http.StatusNotFound).
		WithDetails(map[string]any{"task_id": jobID})
}

// RenderFailed carries the failure message of a finished job.
func RenderFailed(jobID, message string) *Error {
	if message == "" {
		message = "Screenshot failed"
	}
	return New(ErrRenderFailed, message, http.StatusInternalServerError).
		WithDetails(map[string]any{"task_id": jobID})
}

// CacheReadFailed is returned when a cached image exists but cannot be served.
func CacheReadFailed(message string) *Error {
	if message == "" {
		message = "Failed to read cached screenshot"
	}
	return New(ErrCacheReadFail, message, http.StatusInternalServerError)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ValidationBodyTooLarge is returned when a request body exceeds the configured limit.
func ValidationBodyTooLarge(limit int64) *Error {
	return New(ErrValidationTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]any{"limit_bytes": limit})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]any{"resource_type": resourceType})
}

// MethodNotAllowed creates an error for a known route called with the wrong method
func MethodNotAllowed() *Error {
	return New(ErrResourceNotAllowed, "Method not allowed", http.StatusMethodNotAllowed)
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
