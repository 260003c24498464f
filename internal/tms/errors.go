package tms

import (
	"errors"
	"fmt"
)

// maxDiagnosticBody bounds how much of an upstream body is kept for diagnostics
const maxDiagnosticBody = 400

// Error kinds returned by every TMS call
var (
	ErrInvalidResponse     = errors.New("tms: invalid response")
	ErrAuthFailed          = errors.New("tms: authentication failed")
	ErrNotFound            = errors.New("tms: not found")
	ErrUpstreamUnavailable = errors.New("tms: upstream unavailable")
)

// Errors for TMS client configuration
var (
	ErrConfigMissingBaseURL = errors.New("tms: base url is required")
	ErrConfigInvalidBaseURL = errors.New("tms: base url is invalid")
)

// ResponseError describes an upstream response that could not be used.
// It unwraps to one of the error kinds above.
type ResponseError struct {
	Kind     error
	Endpoint string
	Status   int
	Detail   string
	Body     string
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Endpoint)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ResponseError) Unwrap() error {
	return e.Kind
}

func newResponseError(kind error, endpoint string, status int, detail string, body []byte) *ResponseError {
	return &ResponseError{
		Kind:     kind,
		Endpoint: endpoint,
		Status:   status,
		Detail:   detail,
		Body:     Truncate(string(body), maxDiagnosticBody),
	}
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

// DiagnosticBody returns the truncated raw body carried by err, if any
func DiagnosticBody(err error) string {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.Body
	}
	return ""
}
