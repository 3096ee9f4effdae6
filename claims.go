package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims carries the subject email plus the registered timestamps. No
// role or profile data is embedded: the filter resolves those per request.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// Email returns the subject claim.
func (c *JWTClaims) Email() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the expiry time, zero when absent.
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the issued at time, zero when absent.
func (c *JWTClaims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}
