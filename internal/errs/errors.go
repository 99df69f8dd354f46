// Package errs classifies replication failures so callers can tell a rerun-safe
// transient failure apart from an invalid request or a fatal abort.
package errs

import (
	"errors"
	"fmt"
)

// Class represents how a failure should be handled.
type Class int

const (
	// Transient failures are scoped to one object or batch; a rerun is the recovery path.
	Transient Class = iota
	// Invalid failures come from bad input or configuration.
	Invalid
	// Fatal failures abort the whole operation.
	Fatal
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard sentinels.
var (
	ErrProtectedDestination = errors.New("destination environment is protected")
	ErrInvalidNamespace     = errors.New("invalid namespace")
	ErrNamespaceTaken       = errors.New("namespace collides with an existing id")
	ErrAlreadyNamespaced    = errors.New("id already carries the namespace prefix")
	ErrNotFound             = errors.New("not found")
	ErrUnknownDriver        = errors.New("unknown driver")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// ClassifiedError wraps an error with its classification and the operation that failed.
type ClassifiedError struct {
	Class Class
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error { return e.Err }

func wrap(class Class, err error, op string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Op: op, Err: err}
}

// WrapTransient marks err as transient.
func WrapTransient(err error, op string) error { return wrap(Transient, err, op) }

// WrapInvalid marks err as invalid input.
func WrapInvalid(err error, op string) error { return wrap(Invalid, err, op) }

// WrapFatal marks err as fatal.
func WrapFatal(err error, op string) error { return wrap(Fatal, err, op) }

// ClassOf returns the class of err. Unclassified errors are treated as transient,
// except for the guard sentinels which are always fatal or invalid.
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	switch {
	case errors.Is(err, ErrProtectedDestination):
		return Fatal
	case errors.Is(err, ErrInvalidNamespace),
		errors.Is(err, ErrNamespaceTaken),
		errors.Is(err, ErrAlreadyNamespaced),
		errors.Is(err, ErrUnknownDriver),
		errors.Is(err, ErrInvalidConfig):
		return Invalid
	}
	return Transient
}

// IsFatal reports whether err is classified as fatal.
func IsFatal(err error) bool { return err != nil && ClassOf(err) == Fatal }

// IsInvalid reports whether err is classified as invalid input.
func IsInvalid(err error) bool { return err != nil && ClassOf(err) == Invalid }

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool { return err != nil && ClassOf(err) == Transient }
