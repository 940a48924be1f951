package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/taskdesk/taskdesk/internal/platform/httpx"
)

// Middleware authenticates bearer tokens and stores the principal in the request context.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Authenticate rejects requests without a valid bearer token. Preflight
// requests pass through untouched.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := bearerToken(r)
		if !ok {
			httpx.Unauthorized(w)
			return
		}
		principal, err := m.Verifier.Verify(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("reject bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
