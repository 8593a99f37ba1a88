package identity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware verifies a bearer token when one is sent and stores the Owner in the request context.
// Requests without a token pass through anonymously; handlers decide what anonymous callers may do.
type Middleware struct {
	verifier Verifier
}

// NewMiddleware returns a Middleware. A nil verifier ignores Authorization headers entirely.
func NewMiddleware(v Verifier) *Middleware {
	return &Middleware{verifier: v}
}

func (m *Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" || m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		owner, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			slog.Error("token verification failed", "error", err)
			writeError(w, http.StatusBadGateway, "identity service unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

// Require rejects requests that did not present a verified token.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if OwnerFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
