package expense

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"expense-tracker/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes must be mounted behind auth.Guard.RequireAuth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListExpenses)
	r.Post("/", h.CreateExpense)
	r.Get("/{id}", h.GetExpense)
	r.Put("/{id}", h.UpdateExpense)
	r.Delete("/{id}", h.DeleteExpense)
	return r
}

type expenseRequest struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Date     string  `json:"date"`
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	expenses, err := h.store.List(r.Context(), owner)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list expenses")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	e, err := h.store.Get(r.Context(), owner, id)
	if err != nil {
		h.storeError(w, err, "failed to load expense")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"expense": e})
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	e, err := h.store.Create(r.Context(), owner, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create expense")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"expense": e})
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	e, err := h.store.Update(r.Context(), owner, id, input)
	if err != nil {
		h.storeError(w, err, "failed to update expense")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"expense": e})
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), owner, id); err != nil {
		h.storeError(w, err, "failed to delete expense")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) storeError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "expense not found")
		return
	}
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// ownerFrom reads the owner only from the identity the guard attached.
func ownerFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return "", false
	}
	return owner, true
}

func expenseID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid expense id")
		return "", false
	}
	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body expenseRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return Input{}, false
	}

	input := Input{
		Title:    strings.TrimSpace(body.Title),
		Amount:   body.Amount,
		Category: strings.TrimSpace(body.Category),
	}

	if input.Title == "" || utf8.RuneCountInString(input.Title) > 150 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "title is required and must be at most 150 characters")
		return Input{}, false
	}
	if input.Amount < 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be >= 0")
		return Input{}, false
	}
	if input.Category == "" || utf8.RuneCountInString(input.Category) > 50 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "category is required and must be at most 50 characters")
		return Input{}, false
	}

	date, err := parseDate(body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD or RFC 3339")
		return Input{}, false
	}
	input.Date = date

	return input, true
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": message})
}
