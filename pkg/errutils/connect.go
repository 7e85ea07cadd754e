package errutils

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of server error kinds carried by the error wire contract.
type ErrorKind string

// Server error kinds.
const (
	KindServer        ErrorKind = "server"
	KindUnreachable   ErrorKind = "unreachable"
	KindTimeout       ErrorKind = "timeout"
	KindClientVersion ErrorKind = "client_version"
	KindNotFound      ErrorKind = "not_found"
	KindSecurity      ErrorKind = "security"
)

// SecurityReason tells why a request was refused for security reasons.
type SecurityReason string

// Security refusal reasons.
const (
	ReasonAuth      SecurityReason = "auth"
	ReasonProxyAuth SecurityReason = "proxy_auth"
	ReasonSigning   SecurityReason = "signing"
)

// Error types returned by the connect protocol.
type (
	// ConnectServerError is a remote or protocol failure.
	ConnectServerError struct {
		Kind       ErrorKind
		StatusCode int
		Message    string
		Err        error
	}

	// ConnectSecurityError is an authentication, proxy authentication or signing refusal.
	ConnectSecurityError struct {
		Reason     SecurityReason
		StatusCode int
		Message    string
		Err        error
	}
)

var (
	// ErrCanNotReachConnectServer matches every ConnectServerError of kind KindUnreachable.
	ErrCanNotReachConnectServer = &ConnectServerError{Kind: KindUnreachable, Message: "can not reach connect server"}

	// ErrConnectServer matches every ConnectServerError regardless of its kind.
	ErrConnectServer = fmt.Errorf("connect server error")

	// ErrConnectSecurity matches every ConnectSecurityError regardless of its reason.
	ErrConnectSecurity = fmt.Errorf("connect security error")
)

// Error implements the error interface for ConnectServerError.
func (e *ConnectServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for ConnectServerError.
func (e *ConnectServerError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnectServer or a ConnectServerError of the same kind.
func (e *ConnectServerError) Is(target error) bool {
	if target == ErrConnectServer {
		return true
	}
	var other *ConnectServerError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Error implements the error interface for ConnectSecurityError.
func (e *ConnectSecurityError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request refused (" + string(e.Reason) + ")"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for ConnectSecurityError.
func (e *ConnectSecurityError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnectSecurity or a ConnectSecurityError with the same reason.
func (e *ConnectSecurityError) Is(target error) bool {
	if target == ErrConnectSecurity {
		return true
	}
	var other *ConnectSecurityError
	if errors.As(target, &other) {
		return other.Reason == e.Reason
	}
	return false
}

// NewServerError creates a ConnectServerError of the given kind.
func NewServerError(kind ErrorKind, status int, message string) error {
	return &ConnectServerError{Kind: kind, StatusCode: status, Message: message}
}

// NewUnreachableError wraps a transport failure as a KindUnreachable error.
func NewUnreachableError(err error) error {
	return &ConnectServerError{Kind: KindUnreachable, Message: "can not reach connect server", Err: err}
}

// NewSecurityError creates a ConnectSecurityError with the given reason.
func NewSecurityError(reason SecurityReason, status int, message string) error {
	return &ConnectSecurityError{Reason: reason, StatusCode: status, Message: message}
}

// NewSigningError wraps a signing failure as a ConnectSecurityError.
func NewSigningError(err error) error {
	return &ConnectSecurityError{Reason: ReasonSigning, Message: "cannot sign request", Err: err}
}

// IsUnreachable reports whether err means the connect server could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrCanNotReachConnectServer)
}

// KindOf returns the server error kind carried by err, or "" when err is not a ConnectServerError.
func KindOf(err error) ErrorKind {
	var se *ConnectServerError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
