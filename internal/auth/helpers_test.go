package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"expense-tracker/internal/config"
	"expense-tracker/internal/observability"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:               "test",
		DatabaseURL:       "postgres://unused",
		SigningSecret:     "test-signing-secret",
		TokenLifetime:     config.DefaultTokenLifetime,
		MinPasswordLength: config.DefaultMinPasswordLength,
		MinUsernameLength: config.DefaultMinUsernameLength,
		MaxUsernameLength: config.DefaultMaxUsernameLength,
		BcryptCost:        bcrypt.MinCost,
		HashWorkers:       4,
	}
}

func newTestHasher(t *testing.T) *BcryptHasher {
	t.Helper()
	hasher, err := NewBcryptHasher(bcrypt.MinCost, 4)
	require.NoError(t, err)
	return hasher
}

type testEnv struct {
	service *Service
	store   *memStore
	tokens  *TokenManager
	cfg     *config.Config
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	cfg := testConfig()
	store := newMemStore()
	tokens := NewTokenManager(cfg)
	service := NewService(store, newTestHasher(t), tokens, cfg, observability.NewNopLogger())
	return testEnv{service: service, store: store, tokens: tokens, cfg: cfg}
}

// memStore enforces uniqueness under a single mutex, so concurrent inserts
// behave like the unique constraints of the users table.
type memStore struct {
	mu    sync.Mutex
	users map[string]User
	seq   int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]User)}
}

func (s *memStore) FindByUsernameOrEmail(_ context.Context, value string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == value || u.Email == strings.ToLower(value) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *memStore) FindByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) Insert(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return User{}, &ConstraintViolation{Field: "username"}
		}
		if u.Email == user.Email {
			return User{}, &ConstraintViolation{Field: "email"}
		}
	}

	s.seq++
	user.ID = fmt.Sprintf("user-%d", s.seq)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return user, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
