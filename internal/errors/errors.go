// Package errors defines the error-kind taxonomy the orchestrator core
// classifies every failure into, independent of which component raised it.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure, not its concrete type. Phase
// classification (critical vs non-critical) and exit-code mapping both
// switch on Kind rather than on Go type assertions.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindCredential         Kind = "CredentialError"
	KindPermissionDenied   Kind = "PermissionDenied"
	KindNotFound           Kind = "NotFound"
	KindTransport          Kind = "TransportError"
	KindTimeout            Kind = "Timeout"
	KindRateLimited        Kind = "RateLimited"
	KindCircularDependency Kind = "CircularDependency"
	KindCancelled          Kind = "Cancelled"
	KindPersistence        Kind = "PersistenceError"
)

// Error wraps an underlying cause with a classification Kind and the
// domain/phase context it occurred in.
type Error struct {
	Kind   Kind
	Domain string
	Phase  string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Domain != "" && e.Phase != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Kind, e.Domain, e.Phase, e.Msg)
	}
	if e.Domain != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Domain, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDomain attaches domain/phase context, returning the same *Error for chaining.
func (e *Error) WithDomain(domain, phase string) *Error {
	e.Domain = domain
	e.Phase = phase
	return e
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Cancelled reports whether err is (or wraps) a Cancelled classification.
func Cancelled(err error) bool { return Is(err, KindCancelled) }
