package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"expense-tracker/internal/db"
)

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

// Repository is the Postgres IdentityStore.
type Repository struct {
	db db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{db: pool}
}

const selectUser = `
	SELECT id::text, username, email, password_hash, display_name, created_at, updated_at
	FROM users
`

func (r *Repository) FindByUsernameOrEmail(ctx context.Context, value string) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUser+`
		WHERE username = $1 OR email = lower($1)
		LIMIT 1
	`, value))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by username or email: %w", err)
	}

	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrUserNotFound
	}

	user, err := scanUser(r.db.QueryRow(ctx, selectUser+`
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

// Insert relies on the unique constraints of the users table, so two racing
// inserts of the same username yield one row and one ConstraintViolation.
func (r *Repository) Insert(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return User{}, fmt.Errorf("generate uuid v7: %w", err)
		}
		user.ID = id.String()
	}

	now := time.Now().UTC()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.DisplayName, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return User{}, &ConstraintViolation{Field: constraintField(pgErr.ConstraintName), Err: err}
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func constraintField(name string) string {
	switch name {
	case usernameConstraint:
		return "username"
	case emailConstraint:
		return "email"
	default:
		return name
	}
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.DisplayName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return user, nil
}
