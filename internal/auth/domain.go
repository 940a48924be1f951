package auth

import "strings"

// Principal describes the authenticated caller of an API request.
type Principal struct {
	UserName string
	Tenant   string
	Roles    []string
}

// HasTenant reports whether the caller is scoped to a tenant.
func (p Principal) HasTenant() bool {
	return strings.TrimSpace(p.Tenant) != ""
}
