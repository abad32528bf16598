package expense

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/config"
	"expense-tracker/internal/observability"
)

type memStore struct {
	mu       sync.Mutex
	expenses map[string]Expense
}

func newMemStore() *memStore {
	return &memStore{expenses: make(map[string]Expense)}
}

func (s *memStore) List(_ context.Context, ownerID string) ([]Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Expense, 0)
	for _, e := range s.expenses {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, ownerID, id string) (Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (s *memStore) Create(_ context.Context, ownerID string, input Input) (Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Expense{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Title:    input.Title,
		Amount:   input.Amount,
		Category: input.Category,
		Date:     input.Date,
	}
	s.expenses[e.ID] = e
	return e, nil
}

func (s *memStore) Update(ctx context.Context, ownerID, id string, input Input) (Expense, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.expenses[id]
	e.Title, e.Amount, e.Category, e.Date = input.Title, input.Amount, input.Category, input.Date
	s.expenses[id] = e
	return e, nil
}

func (s *memStore) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expenses, id)
	return nil
}

type fixture struct {
	router http.Handler
	tokens *auth.TokenManager
	store  *memStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tokens := auth.NewTokenManager(&config.Config{SigningSecret: "expense-test-secret", TokenLifetime: time.Hour})
	guard := auth.NewGuard(tokens, observability.NewNopLogger())
	store := newMemStore()

	r := chi.NewRouter()
	r.With(guard.RequireAuth).Mount("/expenses", NewHandler(store).Routes())
	return fixture{router: r, tokens: tokens, store: store}
}

func (f fixture) do(t *testing.T, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		issued, err := f.tokens.Issue(subject)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+issued.Token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestExpenses_RequireAuthentication(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/expenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
}

func TestExpenses_CRUDScopedToOwner(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/expenses", "alice-id", map[string]any{
		"title":    "Groceries",
		"amount":   42.5,
		"category": "food",
		"date":     "2026-10-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Expense Expense `json:"expense"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Groceries", created.Expense.Title)
	assert.Equal(t, "alice-id", f.store.expenses[created.Expense.ID].OwnerID)

	path := "/expenses/" + created.Expense.ID

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, "alice-id", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, "mallory-id", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, path, "mallory-id", nil).Code)

	var list struct {
		Expenses []Expense `json:"expenses"`
	}
	rec = f.do(t, http.MethodGet, "/expenses", "mallory-id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Expenses)

	rec = f.do(t, http.MethodPut, path, "alice-id", map[string]any{
		"title":    "Groceries (market)",
		"amount":   40,
		"category": "food",
		"date":     "2026-10-02T09:30:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), f.store.expenses[created.Expense.ID].Date)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, path, "alice-id", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, "alice-id", nil).Code)
}

func TestExpenses_OwnerIsNeverTakenFromInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/expenses", "alice-id", map[string]any{
		"title":    "Rent",
		"amount":   900,
		"category": "housing",
		"date":     "2026-10-01",
		"owner_id": "mallory-id",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.store.expenses)
}

func TestExpenses_InputValidation(t *testing.T) {
	f := newFixture(t)

	bad := []map[string]any{
		{"title": "", "amount": 1, "category": "food", "date": "2026-10-01"},
		{"title": "Taxi", "amount": -3, "category": "travel", "date": "2026-10-01"},
		{"title": "Taxi", "amount": 3, "category": "", "date": "2026-10-01"},
		{"title": "Taxi", "amount": 3, "category": "travel", "date": "yesterday"},
	}
	for _, body := range bad {
		rec := f.do(t, http.MethodPost, "/expenses", "alice-id", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	}

	rec := f.do(t, http.MethodGet, "/expenses/not-a-uuid", "alice-id", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
