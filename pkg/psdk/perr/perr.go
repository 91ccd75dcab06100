package perr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a stable error category that callers can switch on.
type Code string

const (
	CodeUnknown            Code = "unknown"
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeNoRefreshToken     Code = "no_refresh_token"
	CodeRefreshRejected    Code = "refresh_rejected"
	CodeRefreshNetwork     Code = "refresh_network"
	CodeRefreshFailed      Code = "refresh_failed"
	CodeSessionExpired     Code = "session_expired"
	CodeHTTP               Code = "http"
	CodeTransport          Code = "transport"
)

// Error is a simple value type that carries a Code plus the underlying error.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New wraps an error with the provided code. If err is nil a nil is returned.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: err}
}

// Newf is New with a formatted message as the cause.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, err: fmt.Errorf(format, args...)}
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.err
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HTTPError is a non-2xx response the gateway passes through to the caller.
type HTTPError struct {
	Status int
	Detail string
	Body   []byte
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("status %d: %s", e.Status, http.StatusText(e.Status))
}

// StatusCode returns the HTTP status carried in err's chain, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
