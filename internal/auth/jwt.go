package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sprintdeck/sprintdeck/pkg/errors"
)

// Claims carried in Sprintdeck access tokens. RoleID drives the
// governance check on manual breaker overrides; TenantID scopes audit
// records to a workspace.
type Claims struct {
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id"`
	TenantID string `json:"tenant_id,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HMAC-signed access tokens
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with the given secret
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates a token string and returns its claims
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewAuthenticationError("unexpected token signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.NewAuthenticationError("invalid or expired token").WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewAuthenticationError("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.NewAuthenticationError("token missing user identity")
	}
	return claims, nil
}

// Issue signs a new access token for the given identity. Used by tests
// and by the local development tooling; production tokens come from the
// Sprintdeck identity service.
func (v *TokenVerifier) Issue(userID, roleID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		RoleID:   roleID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "sprintdeck",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", errors.NewInternalError("failed to sign token").WithCause(err)
	}
	return signed, nil
}
