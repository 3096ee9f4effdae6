package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTStateManagerRoundTrip(t *testing.T) {
	sm := NewJWTStateManager([]byte(testSecret), time.Minute)

	token, err := sm.Encode(&OAuthState{Provider: "github", RedirectURL: "/home"})
	require.NoError(t, err)

	state, err := sm.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "github", state.Provider)
	assert.Equal(t, "/home", state.RedirectURL)
	assert.NotEmpty(t, state.Nonce)
}

func TestJWTStateManagerRejects(t *testing.T) {
	sm := NewJWTStateManager([]byte(testSecret), time.Minute)
	other := NewJWTStateManager([]byte("another-secret-another-secret-xx"), time.Minute)

	foreign, err := other.Encode(&OAuthState{Provider: "github"})
	require.NoError(t, err)

	_, err = sm.Decode(foreign)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = sm.Decode("")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = sm.Encode(&OAuthState{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestJWTStateManagerExpiry(t *testing.T) {
	sm := NewJWTStateManager([]byte(testSecret), time.Minute)
	now := time.Now()
	sm.now = func() time.Time { return now }

	token, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	sm.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = sm.Decode(token)
	assert.ErrorIs(t, err, ErrStateExpired)
}
