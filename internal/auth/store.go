package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrUserNotFound = errors.New("user not found")

// ConstraintViolation is returned by IdentityStore.Insert when a unique field
// is already taken. Field is "username" or "email".
type ConstraintViolation struct {
	Field string
	Err   error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("unique constraint violated on %s", e.Field)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// IdentityStore persists users. Implementations must enforce uniqueness of
// username and email atomically in Insert.
type IdentityStore interface {
	// FindByUsernameOrEmail matches value against username, or against email
	// after lowercasing. Returns ErrUserNotFound on a miss.
	FindByUsernameOrEmail(ctx context.Context, value string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Insert(ctx context.Context, user User) (User, error)
}
