package auth

import (
	"errors"
	"fmt"
)

// Kind is the client-visible classification of an auth failure.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindDuplicateUsername  Kind = "DUPLICATE_USERNAME"
	KindDuplicateEmail     Kind = "DUPLICATE_EMAIL"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindNotFound           Kind = "NOT_FOUND"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// Error carries a Kind plus a message safe to show to the client. Err holds
// the internal cause and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid username or password"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrDuplicateUsername  = &Error{Kind: KindDuplicateUsername, Message: "username already exists", Field: "username"}
	ErrDuplicateEmail     = &Error{Kind: KindDuplicateEmail, Message: "email already exists", Field: "email"}
)

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf classifies any error. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
