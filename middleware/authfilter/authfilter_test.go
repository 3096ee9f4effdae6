package authfilter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/hr-auth"
	"github.com/goliatone/hr-auth/middleware/authfilter"
)

const secret = "0123456789abcdef0123456789abcdef"

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) ObserveFilterOutcome(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

func (o *outcomes) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.seen) == 0 {
		return ""
	}
	return o.seen[len(o.seen)-1]
}

// faultyStore fails every lookup with a non domain error.
type faultyStore struct {
	auth.CredentialStore
}

func (faultyStore) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, errors.New("connection reset by peer")
}

type fixture struct {
	app      *fiber.App
	tokens   *auth.TokenServiceImpl
	store    *auth.MemoryCredentialStore
	observed *outcomes
}

func newFixture(t *testing.T, mutate func(*authfilter.Config)) *fixture {
	t.Helper()

	tokens, err := auth.NewTokenService([]byte(secret), time.Hour, auth.WithTokenLogger(auth.NopLogger{}))
	require.NoError(t, err)

	store := auth.NewMemoryCredentialStore()
	_, err = store.Save(context.Background(), &auth.User{
		Name: "Grace Hopper", Email: "grace@example.com", Role: auth.RoleAdmin,
	})
	require.NoError(t, err)

	f := &fixture{tokens: tokens, store: store, observed: &outcomes{}}

	cfg := authfilter.Config{
		Tokens:   tokens,
		Store:    store,
		Logger:   auth.NopLogger{},
		Observer: f.observed,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(auth.NopLogger{})})
	app.Use(authfilter.New(cfg))
	handler := func(c *fiber.Ctx) error {
		identity, ok := auth.IdentityFromFiber(c)
		if !ok {
			return c.JSON(fiber.Map{"anonymous": true})
		}
		return c.JSON(fiber.Map{"email": identity.Email, "role": identity.Role})
	}
	app.Get("/api/employees", handler)
	app.Get("/api/files/public", handler)
	app.Post("/api/files/public", handler)
	app.Get("/api/auth/login", handler)
	app.Get("/", handler)
	app.Get("/dashboard", handler)

	f.app = app
	return f
}

func (f *fixture) get(t *testing.T, method, path, authorization string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func (f *fixture) issue(t *testing.T, subject string) string {
	t.Helper()
	token, err := f.tokens.Issue(subject)
	require.NoError(t, err)
	return token
}

func expiredToken(t *testing.T, subject string) string {
	t.Helper()
	past := time.Now().Add(-3 * time.Hour)
	old, err := auth.NewTokenService([]byte(secret), time.Hour,
		auth.WithClock(func() time.Time { return past }),
		auth.WithTokenLogger(auth.NopLogger{}),
	)
	require.NoError(t, err)
	token, err := old.Issue(subject)
	require.NoError(t, err)
	return token
}

func TestFilterAuthenticatesValidToken(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "GET", "/api/employees", "Bearer "+f.issue(t, "grace@example.com"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "grace@example.com", body["email"])
	assert.Equal(t, "ADMIN", body["role"])
	assert.Equal(t, string(authfilter.OutcomeAuthenticated), f.observed.last())
}

func TestFilterAnonymousWithoutHeader(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "GET", "/api/employees", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["anonymous"])
	assert.Equal(t, string(authfilter.OutcomeAnonymous), f.observed.last())
}

func TestFilterRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		header  string
		outcome authfilter.Outcome
		code    string
	}{
		{"expired", "Bearer " + expiredToken(t, "grace@example.com"), authfilter.OutcomeExpired, auth.TextCodeTokenExpired},
		{"garbage", "Bearer not.a.token", authfilter.OutcomeMalformed, auth.TextCodeTokenMalformed},
		{"basic scheme", "Basic Z3JhY2U6c2VjcmV0", authfilter.OutcomeMalformed, auth.TextCodeTokenMalformed},
		{"empty bearer", "Bearer ", authfilter.OutcomeMalformed, auth.TextCodeTokenMalformed},
		{"scheme without separator", "Bearerabc", authfilter.OutcomeMalformed, auth.TextCodeTokenMalformed},
		{"unknown subject", "Bearer " + f.issue(t, "ghost@example.com"), authfilter.OutcomeUnknownIdentity, auth.TextCodeAuthenticationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.get(t, "GET", "/api/employees", tt.header)
			assert.Equal(t, fiber.StatusUnauthorized, status)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, string(tt.outcome), f.observed.last())
		})
	}
}

func TestFilterContinuePolicy(t *testing.T) {
	f := newFixture(t, func(cfg *authfilter.Config) {
		cfg.Policy = authfilter.PolicyContinue
	})

	for _, header := range []string{
		"Bearer " + expiredToken(t, "grace@example.com"),
		"Bearer not.a.token",
		"Bearer " + f.issue(t, "ghost@example.com"),
	} {
		status, body := f.get(t, "GET", "/api/employees", header)
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["anonymous"])
	}

	assert.Equal(t, []string{"expired", "malformed", "unknown_identity"}, f.observed.seen)
}

func TestFilterExemptBeforeHeaderInspection(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "GET", "/api/auth/login", "Bearer garbage")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["anonymous"], "exempt routes never attach an identity")
	assert.Equal(t, string(authfilter.OutcomeExempt), f.observed.last())

	status, _ = f.get(t, "GET", "/api/files/public", "Bearer garbage")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.get(t, "POST", "/api/files/public", "Bearer garbage")
	assert.Equal(t, fiber.StatusUnauthorized, status, "method scoped exemption")

	status, _ = f.get(t, "GET", "/", "Bearer garbage")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.get(t, "GET", "/dashboard", "Bearer garbage")
	assert.Equal(t, fiber.StatusUnauthorized, status, "root entry matches exactly")
}

func TestFilterStoreFaultIsInternal(t *testing.T) {
	f := newFixture(t, func(cfg *authfilter.Config) {
		cfg.Store = faultyStore{}
		cfg.Policy = authfilter.PolicyContinue
	})

	status, body := f.get(t, "GET", "/api/employees", "Bearer "+f.issue(t, "grace@example.com"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, auth.TextCodeInternal, body["code"])
	assert.Equal(t, "An unexpected error occurred", body["message"])
	assert.Equal(t, string(authfilter.OutcomeError), f.observed.last())
}

func TestFilterRequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() { authfilter.New(authfilter.Config{}) })
}

func TestParsePolicy(t *testing.T) {
	p, err := authfilter.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, authfilter.PolicyReject, p)

	p, err = authfilter.ParsePolicy(" Continue ")
	require.NoError(t, err)
	assert.Equal(t, authfilter.PolicyContinue, p)

	_, err = authfilter.ParsePolicy("allow")
	assert.Error(t, err)
}
