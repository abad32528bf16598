package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const maxJSONBodyBytes = 1 << 20

// AuthService is the part of Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (Session, error)
	Login(ctx context.Context, identifier, password string) (Session, error)
	CurrentUser(ctx context.Context, subjectID string) (PublicUser, error)
}

type Handler struct {
	service AuthService
}

func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// loginRequest takes the identifier as "identifier" or, as older web
// clients send it, as "username".
type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type errorBody struct {
	ErrorKind  Kind   `json:"error_kind"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

type userResponse struct {
	User PublicUser `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	session, err := h.service.Register(r.Context(), RegisterInput{
		Username:    body.Username,
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identifier := body.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = body.Username
	}

	session, err := h.service.Login(r.Context(), identifier, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Me must be mounted behind Guard.RequireAuth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, ErrUnauthenticated)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), subject)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// Logout only acknowledges; tokens are not tracked server side and the
// client discards its copy.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "logged out",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{ErrorKind: KindValidation, Message: "invalid json body"})
		return false
	}
	return true
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindDuplicateUsername, KindDuplicateEmail:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError never exposes the wrapped cause of an *Error.
func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = internalError("internal server error", err)
	}

	body := errorBody{ErrorKind: e.Kind, Message: e.Message, Field: e.Field}
	if e.Kind == KindUnauthenticated {
		body.RedirectTo = "/login"
	}
	writeJSON(w, statusFor(e.Kind), body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
