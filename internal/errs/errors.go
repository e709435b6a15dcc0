// Package errs classifies failures so callers can tell "try again later" from
// "fix your credentials" from "this will never work".
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Class is the handling category of an error.
type Class int

const (
	// Transient errors clear up on their own: connection refused, timeouts, 5xx.
	Transient Class = iota
	// Auth errors need new credentials.
	Auth
	// Invalid errors are caused by bad input or configuration.
	Invalid
	// Fatal errors stop initialization for good.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Auth:
		return "auth"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	ErrNotReady               = errors.New("not ready")
	ErrAuthFailed             = errors.New("authentication failed")
	ErrUnsupportedVersion     = errors.New("unsupported cluster version")
	ErrInsufficientPrivileges = errors.New("insufficient privileges")
	ErrInvalidConfig          = errors.New("invalid configuration")

	ErrAlreadyInitialized = errors.New("already initialized")
	ErrStopped            = errors.New("stopped")
	ErrConnectionLost     = errors.New("connection lost")
)

// ClassifiedError carries a Class plus where the failure happened.
type ClassifiedError struct {
	Class     Class
	Err       error
	Component string
	Operation string
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Component, e.Operation, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func wrap(class Class, err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err, Component: component, Operation: operation}
}

func WrapTransient(err error, component, operation string) error {
	return wrap(Transient, err, component, operation)
}

func WrapAuth(err error, component, operation string) error {
	return wrap(Auth, err, component, operation)
}

func WrapInvalid(err error, component, operation string) error {
	return wrap(Invalid, err, component, operation)
}

func WrapFatal(err error, component, operation string) error {
	return wrap(Fatal, err, component, operation)
}

// ClassOf returns the class of err. Unclassified errors count as transient,
// except for the sentinels that say otherwise.
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	switch {
	case errors.Is(err, ErrAuthFailed):
		return Auth
	case errors.Is(err, ErrInvalidConfig):
		return Invalid
	case errors.Is(err, ErrUnsupportedVersion), errors.Is(err, ErrInsufficientPrivileges):
		return Fatal
	default:
		return Transient
	}
}

func IsTransient(err error) bool { return err != nil && ClassOf(err) == Transient }

func IsAuth(err error) bool { return err != nil && ClassOf(err) == Auth }

func IsFatal(err error) bool { return err != nil && ClassOf(err) == Fatal }

// IsCanceled reports whether err came from our own context being cancelled.
func IsCanceled(err error) bool { return errors.Is(err, context.Canceled) }
