package auth

import (
	"context"
	"net/http"
	"strings"

	"expense-tracker/internal/observability"
)

type identityKey struct{}

// Identity is the per-request result of a successful token check. Its
// fields are unexported so only the Guard can build one.
type Identity struct {
	subject string
}

func (i Identity) Subject() string { return i.subject }

// IdentityFromContext returns the identity attached by the Guard, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.subject != ""
}

// SubjectFromContext is a shortcut for handlers behind RequireAuth.
func SubjectFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.subject, ok
}

type Guard struct {
	tokens TokenVerifier
	logger *observability.Logger
}

func NewGuard(tokens TokenVerifier, logger *observability.Logger) *Guard {
	return &Guard{tokens: tokens, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token with 401.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			g.reject(w, r, "no_token", "authentication required")
			return
		}

		claims, err := g.tokens.Verify(token)
		if err != nil {
			g.reject(w, r, TokenFailureReason(err), "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims.Subject)))
	})
}

// OptionalAuth attaches an identity when a valid token is present and lets
// every request through.
func (g *Guard) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.tokens.Verify(token)
		if err != nil {
			g.logger.Info("optional_auth_ignored", map[string]any{
				"reason": TokenFailureReason(err),
				"path":   r.URL.Path,
			})
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims.Subject)))
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, reason, message string) {
	g.logger.Warn("auth_rejected", map[string]any{
		"reason": reason,
		"method": r.Method,
		"path":   r.URL.Path,
		"ip":     observability.ClientIP(r),
	})

	w.Header().Set("WWW-Authenticate", `Bearer realm="expense-tracker"`)
	writeJSON(w, http.StatusUnauthorized, errorBody{
		ErrorKind:  KindUnauthenticated,
		Message:    message,
		RedirectTo: "/login",
	})
}

func withIdentity(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{subject: subject})
}

// bearerToken extracts "<token>" from "Authorization: Bearer <token>".
// Any other scheme counts as no credential.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
