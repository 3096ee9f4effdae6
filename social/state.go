package social

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateManager handles OAuth state encoding and verification.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState is carried through the provider round trip.
type OAuthState struct {
	Nonce       string
	Provider    string
	RedirectURL string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type stateClaims struct {
	jwt.RegisteredClaims
	Provider    string `json:"p"`
	RedirectURL string `json:"r,omitempty"`
}

// JWTStateManager signs state as a short lived HS256 token.
type JWTStateManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTStateManager creates a state manager. A zero ttl defaults to ten
// minutes.
func NewJWTStateManager(key []byte, ttl time.Duration) *JWTStateManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWTStateManager{key: key, ttl: ttl, now: time.Now}
}

// Encode signs the state, filling in nonce and timestamps.
func (sm *JWTStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil || state.Provider == "" {
		return "", ErrInvalidState
	}

	now := sm.now()
	if state.Nonce == "" {
		state.Nonce = uuid.NewString()
	}
	if state.IssuedAt.IsZero() {
		state.IssuedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = state.IssuedAt.Add(sm.ttl)
	}

	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        state.Nonce,
			IssuedAt:  jwt.NewNumericDate(state.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(state.ExpiresAt),
		},
		Provider:    state.Provider,
		RedirectURL: state.RedirectURL,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.key)
}

// Decode verifies the signature and expiry.
func (sm *JWTStateManager) Decode(token string) (*OAuthState, error) {
	if token == "" {
		return nil, ErrInvalidState
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return sm.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(sm.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	state := &OAuthState{
		Nonce:       claims.ID,
		Provider:    claims.Provider,
		RedirectURL: claims.RedirectURL,
	}
	if claims.IssuedAt != nil {
		state.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		state.ExpiresAt = claims.ExpiresAt.Time
	}
	return state, nil
}
