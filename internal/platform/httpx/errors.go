package httpx

import "net/http"

// Error types exposed to clients.
const (
	TypeAuthentication = "Authentication error"
	TypeAuthorization  = "Authorization error"
	TypePermission     = "Permission Denied"
	TypeBadRequest     = "Bad request error"
	TypeInternal       = "Internal server error"
)

// Unauthorized responds 401 for requests without a usable bearer token.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, TypeAuthentication, "Invalid or missing token")
}

// Forbidden responds 403 for callers lacking the required role.
func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, TypeAuthorization, "Permission denied")
}

// InvalidRequest responds 400 without echoing validation details.
func InvalidRequest(w http.ResponseWriter) {
	Error(w, http.StatusBadRequest, TypeBadRequest, "Invalid request data")
}

// Internal responds 500 for unclassified failures.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, TypeInternal, "Unexpected error")
}
