package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"

	"expense-tracker/internal/config"
	"expense-tracker/internal/observability"
)

// bcrypt ignores input past 72 bytes; longer passwords are refused rather
// than silently truncated.
const (
	maxPasswordBytes   = 72
	maxDisplayNameRune = 100
	maxEmailBytes      = 320
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type TokenIssuer interface {
	Issue(subjectID string) (IssuedToken, error)
}

type Service struct {
	store  IdentityStore
	hasher PasswordHasher
	tokens TokenIssuer
	cfg    *config.Config
	logger *observability.Logger
}

func NewService(store IdentityStore, hasher PasswordHasher, tokens TokenIssuer, cfg *config.Config, logger *observability.Logger) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (Session, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.DisplayName = strings.TrimSpace(input.DisplayName)

	if err := s.validateRegistration(input); err != nil {
		return Session{}, err
	}

	if err := s.checkAvailable(ctx, input.Username, input.Email); err != nil {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return Session{}, s.internal("failed to register", err)
	}

	if input.DisplayName == "" {
		input.DisplayName = input.Username
	}

	user, err := s.store.Insert(ctx, User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		DisplayName:  input.DisplayName,
	})
	if err != nil {
		var violation *ConstraintViolation
		if errors.As(err, &violation) {
			return Session{}, duplicateError(violation.Field)
		}
		return Session{}, s.internal("failed to register", err)
	}

	session, err := s.newSession(user)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("user_registered", map[string]any{"user_id": user.ID})
	return session, nil
}

// Login accepts a username or an email as identifier. Unknown identifiers and
// wrong passwords produce the same ErrInvalidCredentials after the same
// amount of hashing work.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Session{}, validationError("username", "username or email is required")
	}
	if password == "" {
		return Session{}, validationError("password", "password is required")
	}

	user, err := s.store.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return Session{}, s.internal("failed to login", err)
		}
		if err := s.hasher.Equalize(ctx, password); err != nil {
			return Session{}, s.internal("failed to login", err)
		}
		s.logger.Warn("login_failed", map[string]any{"reason": "unknown_identifier"})
		return Session{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return Session{}, s.internal("failed to login", err)
	}
	if !ok {
		s.logger.Warn("login_failed", map[string]any{"reason": "password_mismatch", "user_id": user.ID})
		return Session{}, ErrInvalidCredentials
	}

	session, err := s.newSession(user)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("login_succeeded", map[string]any{"user_id": user.ID})
	return session, nil
}

func (s *Service) CurrentUser(ctx context.Context, subjectID string) (PublicUser, error) {
	user, err := s.store.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return PublicUser{}, ErrNotFound
		}
		return PublicUser{}, s.internal("failed to load user", err)
	}

	return user.Public(), nil
}

func (s *Service) validateRegistration(input RegisterInput) error {
	if input.Username == "" {
		return validationError("username", "username is required")
	}
	if input.Email == "" {
		return validationError("email", "email is required")
	}
	if input.Password == "" {
		return validationError("password", "password is required")
	}

	n := utf8.RuneCountInString(input.Username)
	if n < s.cfg.MinUsernameLength || n > s.cfg.MaxUsernameLength {
		return validationError("username", fmt.Sprintf("username must be between %d and %d characters long", s.cfg.MinUsernameLength, s.cfg.MaxUsernameLength))
	}
	if !usernamePattern.MatchString(input.Username) {
		return validationError("username", "username may only contain letters, digits, '.', '_' and '-'")
	}

	if len(input.Email) > maxEmailBytes {
		return validationError("email", "email is too long")
	}
	addr, err := mail.ParseAddress(input.Email)
	if err != nil || addr.Address != input.Email {
		return validationError("email", "email is invalid")
	}

	if utf8.RuneCountInString(input.Password) < s.cfg.MinPasswordLength {
		return validationError("password", fmt.Sprintf("password must be at least %d characters long", s.cfg.MinPasswordLength))
	}
	if len(input.Password) > maxPasswordBytes {
		return validationError("password", fmt.Sprintf("password must be at most %d bytes long", maxPasswordBytes))
	}

	if utf8.RuneCountInString(input.DisplayName) > maxDisplayNameRune {
		return validationError("display_name", fmt.Sprintf("display name must be at most %d characters long", maxDisplayNameRune))
	}

	return nil
}

// checkAvailable reports a precise duplicate before any hashing work. The
// store's unique constraints still decide races in Insert.
func (s *Service) checkAvailable(ctx context.Context, username, email string) error {
	existing, err := s.store.FindByUsernameOrEmail(ctx, username)
	switch {
	case err == nil && existing.Username == username:
		return ErrDuplicateUsername
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return s.internal("failed to register", err)
	}

	existing, err = s.store.FindByUsernameOrEmail(ctx, email)
	switch {
	case err == nil && existing.Email == email:
		return ErrDuplicateEmail
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return s.internal("failed to register", err)
	}

	return nil
}

func (s *Service) newSession(user User) (Session, error) {
	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, s.internal("failed to issue token", err)
	}

	return Session{
		Token:     issued.Token,
		TokenType: "Bearer",
		ExpiresAt: issued.ExpiresAt,
		User:      user.Public(),
	}, nil
}

func (s *Service) internal(message string, err error) error {
	sentry.CaptureException(err)
	s.logger.Error("auth_internal_error", map[string]any{"message": message, "error": err.Error()})
	return internalError(message, err)
}

func duplicateError(field string) error {
	if field == "email" {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}
