// Package validation provides input validation helpers and middleware for the pagewatch API.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxURLLength bounds submitted page URLs
const MaxURLLength = 2083

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidationError represents a single field-level validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Add appends an error for field.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// Prefixed returns a copy with every field path prefixed by prefix.
func (e ValidationErrors) Prefixed(prefix string) ValidationErrors {
	out := make(ValidationErrors, len(e))
	for i, v := range e {
		field := prefix
		if v.Field != "" {
			field = prefix + "." + v.Field
		}
		out[i] = ValidationError{Field: field, Message: v.Message}
	}
	return out
}

// Err returns nil when there are no errors, so callers can `return errs.Err()`.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validate runs validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "field required"}
		}
		return nil
	}
}

// AbsoluteURL checks that value is an absolute http(s) URL with a host.
func AbsoluteURL(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "field required"}
		}
		if len(value) > MaxURLLength {
			return &ValidationError{Field: field, Message: "URL should have at most 2083 characters"}
		}
		if !IsValidURL(value) {
			return &ValidationError{Field: field, Message: "input should be a valid absolute http or https URL"}
		}
		return nil
	}
}

// IsValidURL reports whether s is an absolute http/https URL with a host.
func IsValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// Hostname extracts the lower-cased hostname of rawURL, or "" if it has none.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// QueryInt reads an integer query parameter, falling back to def when absent.
func QueryInt(c *gin.Context, key string, def int) (int, *ValidationError) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ValidationError{Field: "query." + key, Message: "input should be a valid integer"}
	}
	return n, nil
}

// Abort writes the 422 validation response and stops the handler chain.
func Abort(c *gin.Context, errs ValidationErrors) {
	if len(errs) == 0 {
		errs = ValidationErrors{{Field: "body", Message: "invalid request"}}
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "validation_failed",
		"message": errs.Error(),
		"detail":  errs,
	})
}

// ReadBody reads the whole request body. On failure it writes the error
// response (413 when the size limit was hit, 422 otherwise) and returns false.
func ReadBody(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request_too_large",
				"message": fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
			})
			return nil, false
		}
		Abort(c, ValidationErrors{{Field: "body", Message: "could not read request body"}})
		return nil, false
	}
	return data, true
}

// DecodeJSON reads the body into v. Syntax errors are reported against the
// body, type mismatches against the offending field. It writes the error
// response and returns false on failure.
func DecodeJSON(c *gin.Context, v any) bool {
	data, ok := ReadBody(c)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			Abort(c, ValidationErrors{{Field: typeErr.Field, Message: "input should be a valid " + typeErr.Type.String()}})
			return false
		}
		Abort(c, ValidationErrors{{Field: "body", Message: "JSON decode error: " + err.Error()}})
		return false
	}
	return true
}
