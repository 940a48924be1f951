package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the bearer token could not be verified.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the token payload issued by the identity provider.
type Claims struct {
	PreferredUsername string   `json:"preferred_username"`
	TenantKey         string   `json:"tenantKey,omitempty"`
	Groups            []string `json:"groups,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens and turns them into principals.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the raw token and returns the caller it identifies.
func (v *Verifier) Verify(raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	user := strings.TrimSpace(claims.PreferredUsername)
	if user == "" {
		user = strings.TrimSpace(claims.Subject)
	}
	if user == "" {
		return Principal{}, fmt.Errorf("%w: missing user name", ErrInvalidToken)
	}

	return Principal{
		UserName: user,
		Tenant:   strings.TrimSpace(claims.TenantKey),
		Roles:    mergeRoles(claims.Groups, claims.Roles),
	}, nil
}

// Issue signs a token for the principal. It is used by tooling and tests.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PreferredUsername: p.UserName,
		TenantKey:         p.Tenant,
		Roles:             p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserName,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func mergeRoles(groups, roles []string) []string {
	seen := make(map[string]struct{}, len(groups)+len(roles))
	merged := make([]string, 0, len(groups)+len(roles))
	for _, list := range [][]string{groups, roles} {
		for _, r := range list {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}
