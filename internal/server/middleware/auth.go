package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

// TokenVerifier checks an API token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (crypto.TokenClaims, error)
}

// PrincipalResolver turns verified claims into an authorization context.
type PrincipalResolver interface {
	Principal(ctx context.Context, id string, claimed []string) domain.Principal
}

// Auth resolves the caller from a Bearer token (or X-API-Key header) and
// stores the principal in the request context. Requests without a token
// proceed as domain.Anonymous; handlers decide whether that is enough. A
// token that is present but invalid or expired is rejected with 401.
func Auth(tokens TokenVerifier, principals PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				msg := "invalid authentication token"
				if errors.Is(err, crypto.ErrTokenExpired) {
					msg = "authentication token expired"
				}
				writeUnauthorized(w, msg)
				return
			}

			p := principals.Principal(r.Context(), claims.Subject, claims.Roles)
			recordPrincipal(r, p)
			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
		})
	}
}

// extractToken reads "Authorization: Bearer <token>" or X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="marketcore"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","code":"unauthenticated"}`))
}
