package domain

import "errors"

// Code is a machine-readable failure class of the session control plane.
type Code string

const (
	CodeAccessDenied         Code = "ACCESS_DENIED"
	CodeBackendNotConfigured Code = "BACKEND_NOT_CONFIGURED"
	CodeCredential           Code = "CREDENTIAL_ERROR"
	CodeConnect              Code = "CONNECT_ERROR"
	CodeConnectionLost       Code = "CONNECTION_LOST"
	CodeReconnectExhausted   Code = "RECONNECT_EXHAUSTED"
	CodeDevice               Code = "DEVICE_ERROR"
	CodeNetNotFound          Code = "NET_NOT_FOUND"
	CodeNotConnected         Code = "NOT_CONNECTED"
	CodeCancelled            Code = "CANCELLED"
	CodeUnsupported          Code = "UNSUPPORTED"
)

// Error is the domain error type carried through the orchestrator.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first *Error in the chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var (
	ErrAccessDenied         = NewError(CodeAccessDenied, "access denied")
	ErrBackendNotConfigured = NewError(CodeBackendNotConfigured, "backend not configured")
	ErrCredential           = NewError(CodeCredential, "credential error")
	ErrConnect              = NewError(CodeConnect, "connect error")
	ErrConnectionLost       = NewError(CodeConnectionLost, "connection lost")
	ErrReconnectExhausted   = NewError(CodeReconnectExhausted, "reconnect exhausted")
	ErrDevice               = NewError(CodeDevice, "device error")
	ErrNetNotFound          = NewError(CodeNetNotFound, "net not found")
	ErrNotConnected         = NewError(CodeNotConnected, "not connected")
	ErrCancelled            = NewError(CodeCancelled, "cancelled")
	ErrUnsupported          = NewError(CodeUnsupported, "unsupported")
)
