package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenServiceImpl signs HS256 tokens carrying a single subject claim.
type TokenServiceImpl struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
	logger     Logger
}

// TokenServiceOption configures TokenServiceImpl.
type TokenServiceOption func(*TokenServiceImpl)

// WithIssuer sets the iss claim and requires it on validation.
func WithIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.issuer = issuer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a TokenService. The secret must not be empty and
// ttl must be positive.
func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if len(secret) == 0 {
		return nil, errors.New("token service: signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token service: ttl must be positive, got %s", ttl)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	ts := &TokenServiceImpl{
		signingKey: key,
		ttl:        ttl,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// TTL returns the configured token lifetime.
func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a token for subject.
func (ts *TokenServiceImpl) Issue(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", WrapInternal(errors.New("empty subject"), "cannot issue token without subject")
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", WrapInternal(err, "failed to sign JWT")
	}

	return signed, nil
}

// Validate verifies token and returns its subject. Expiry is reported as
// ErrTokenExpired even when the signature does not verify.
func (ts *TokenServiceImpl) Validate(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token service unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || ts.expiredUnverified(tokenString) {
			return "", ErrTokenExpired
		}
		return "", withSource(ErrTokenMalformed, err, nil)
	}

	if !token.Valid || claims.Email() == "" {
		return "", ErrTokenMalformed
	}

	return claims.Email(), nil
}

func (ts *TokenServiceImpl) expiredUnverified(tokenString string) bool {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	exp := claims.Expires()
	return !exp.IsZero() && !ts.now().Before(exp)
}
