package shared

import (
	"errors"
	"fmt"
)

// Kind classifies domain failures surfaced to callers.
type Kind string

const (
	// KindInvalidOperation marks requests the current state cannot accept.
	KindInvalidOperation Kind = "invalid_operation"
	// KindInsufficientStock marks decreases or reservations exceeding stock.
	KindInsufficientStock Kind = "insufficient_stock"
	// KindNotFound marks a missing entity for the tenant.
	KindNotFound Kind = "not_found"
	// KindArithmetic marks decimal arithmetic failures.
	KindArithmetic Kind = "arithmetic"
)

// Error is a domain-level failure carrying its kind and a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Message == "" && other.Kind == e.Kind
}

var (
	// ErrInvalidOperation matches every invalid operation error.
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation}
	// ErrInsufficientStock matches every insufficient stock error.
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	// ErrNotFound matches every not found error.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrArithmetic matches every arithmetic error.
	ErrArithmetic = &Error{Kind: KindArithmetic}
)

// InvalidOperation builds an invalid operation error.
func InvalidOperation(format string, args ...any) error {
	return &Error{Kind: KindInvalidOperation, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock builds an insufficient stock error.
func InsufficientStock(format string, args ...any) error {
	return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not found error for the named entity.
func NotFound(entity string, id any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Arithmetic builds an arithmetic error.
func Arithmetic(format string, args ...any) error {
	return &Error{Kind: KindArithmetic, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err, or "" for non-domain errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}
