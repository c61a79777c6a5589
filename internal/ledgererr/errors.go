// Package ledgererr defines the error taxonomy shared by all ledger
// operations. Every business-rule check is a hard gate: errors are never
// recovered internally, only translated to HTTP responses at the handler.
package ledgererr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a ledger error.
type Kind int

const (
	// Validation marks malformed or out-of-range input. Always
	// client-correctable.
	Validation Kind = iota + 1
	// Conflict marks a business-rule or state violation. Never retried
	// automatically; the caller must choose a different operation.
	Conflict
	// NotFound marks a missing referenced entity.
	NotFound
)

// Error is a classified ledger error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validationf creates a Validation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a Conflict error.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or 0 for unclassified errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// HTTPStatus maps an error to its HTTP status code. Unclassified errors
// map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
