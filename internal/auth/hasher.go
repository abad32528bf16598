package auth

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	// Verify returns false for a mismatch or a malformed hash. The error is
	// only set when ctx ends while waiting for a hashing slot.
	Verify(ctx context.Context, password, hash string) (bool, error)
	// Equalize spends the same work as a failed Verify.
	Equalize(ctx context.Context, password string) error
}

// BcryptHasher bounds concurrent bcrypt work with a weighted semaphore so
// hashing bursts cannot take every CPU away from other requests.
type BcryptHasher struct {
	cost      int
	slots     *semaphore.Weighted
	dummyHash []byte
}

func NewBcryptHasher(cost, workers int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("expense-tracker-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}

	return &BcryptHasher{
		cost:      cost,
		slots:     semaphore.NewWeighted(int64(workers)),
		dummyHash: dummy,
	}, nil
}

func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

func (h *BcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.slots.Release(1)

	// bcrypt only reads the first 72 bytes, so a longer password would match
	// the hash of its prefix. Spend the usual work and report a mismatch.
	if len(password) > maxPasswordBytes {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password[:maxPasswordBytes]))
		return false, nil
	}

	// CompareHashAndPassword compares in constant time and reports malformed
	// hashes as errors, both of which are a plain mismatch here.
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

func (h *BcryptHasher) Equalize(ctx context.Context, password string) error {
	_, err := h.Verify(ctx, password, string(h.dummyHash))
	return err
}
