package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "taskdesk")
	token, err := v.Issue(Principal{UserName: "jane", Tenant: "acme", Roles: []string{"/formsflow/formsflow-reviewer"}}, time.Minute)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "jane", p.UserName)
	assert.Equal(t, "acme", p.Tenant)
	assert.Equal(t, []string{"/formsflow/formsflow-reviewer"}, p.Roles)
	assert.True(t, p.HasTenant())
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("other", "").Issue(Principal{UserName: "jane"}, time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("secret", "").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("secret", "")
	token, err := v.Issue(Principal{UserName: "jane"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsIssuerMismatch(t *testing.T) {
	token, err := NewVerifier("secret", "someone-else").Issue(Principal{UserName: "jane"}, time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("secret", "taskdesk").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierMergesGroupsAndRoles(t *testing.T) {
	claims := Claims{
		PreferredUsername: "sam",
		Groups:            []string{"/formsflow/formsflow-reviewer", "/team"},
		Roles:             []string{"/team", "designer", " "},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	p, err := NewVerifier("secret", "").Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"/formsflow/formsflow-reviewer", "/team", "designer"}, p.Roles)
	assert.False(t, p.HasTenant())
}

func TestVerifierRequiresUserName(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret", "").Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
