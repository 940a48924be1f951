// Package rbac gates HTTP handlers on the roles carried by the caller's token.
package rbac

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"golang.org/x/text/cases"

	"github.com/taskdesk/taskdesk/internal/auth"
	"github.com/taskdesk/taskdesk/internal/platform/httpx"
)

// Middleware wires role authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current caller holds at least one of the required roles.
// Callers without a matching role receive the authorization error body with 403.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Forbidden(w)
				return
			}
			if HasAnyRole(principal.Roles, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("role check failed",
					slog.String("user", principal.UserName),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
			}
			httpx.Forbidden(w)
		})
	}
}

// HasAnyRole reports whether granted satisfies one of required. Roles match
// case-insensitively. A required group path must match a granted path
// exactly; a bare required name also matches the last segment of a granted
// path, so "/formsflow/formsflow-reviewer" satisfies "formsflow-reviewer".
func HasAnyRole(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	paths := make(map[string]struct{}, len(granted))
	names := make(map[string]struct{}, len(granted))
	for _, g := range normalizeRoles(granted) {
		paths[g] = struct{}{}
		names[baseName(g)] = struct{}{}
	}
	for _, r := range normalizeRoles(required) {
		if strings.Contains(r, "/") {
			if _, ok := paths[r]; ok {
				return true
			}
			continue
		}
		if _, ok := names[r]; ok {
			return true
		}
	}
	return false
}

func normalizeRoles(roles []string) []string {
	fold := cases.Fold()
	unique := make(map[string]struct{}, len(roles))
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		role = fold.String(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, ok := unique[role]; ok {
			continue
		}
		unique[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}

func baseName(role string) string {
	if !strings.Contains(role, "/") {
		return role
	}
	return path.Base(role)
}
