package phishing

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a lookup failure mode.
type Code string

const (
	CodeTimeout         Code = "ai_server_timeout"
	CodeUnreachable     Code = "ai_server_unreachable"
	CodeUpstreamError   Code = "ai_server_error"
	CodeInvalidResponse Code = "ai_server_invalid_response"
)

// Error is a failed lookup. UpstreamStatus is set only for CodeUpstreamError.
type Error struct {
	Code           Code
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	switch {
	case e.UpstreamStatus != 0 && e.Err != nil:
		return fmt.Sprintf("%s (upstream status %d): %v", e.Code, e.UpstreamStatus, e.Err)
	case e.UpstreamStatus != 0:
		return fmt.Sprintf("%s (upstream status %d)", e.Code, e.UpstreamStatus)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the failure to the status returned to API clients.
func (e *Error) HTTPStatus() int {
	if e.Code == CodeTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// Message is the client-facing description of the failure.
func (e *Error) Message() string {
	switch e.Code {
	case CodeTimeout:
		return "Phishing analyzer did not respond in time"
	case CodeUnreachable:
		return "Phishing analyzer is unreachable"
	case CodeUpstreamError:
		return fmt.Sprintf("Phishing analyzer returned HTTP %d", e.UpstreamStatus)
	case CodeInvalidResponse:
		return "Phishing analyzer returned an invalid response"
	}
	return "Phishing lookup failed"
}

// IsCode reports whether err is a lookup Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}
