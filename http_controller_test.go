package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/hr-auth"
)

// asIdentity stands in for the authentication filter in controller tests.
func asIdentity(identity *auth.AuthenticatedIdentity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if identity != nil {
			auth.SetIdentity(c, identity)
		}
		return c.Next()
	}
}

func newTestApp(t *testing.T, identity *auth.AuthenticatedIdentity, opts ...auth.AuthControllerOption) (*fiber.App, *auth.Service, *auth.MemoryCredentialStore) {
	t.Helper()
	svc, store, _ := newTestService(t)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(auth.NopLogger{})})
	app.Use(asIdentity(identity))
	opts = append([]auth.AuthControllerOption{auth.WithControllerLogger(auth.NopLogger{})}, opts...)
	auth.NewAuthController(svc, opts...).RegisterRoutes(app)
	return app, svc, store
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

var validRegistration = map[string]string{
	"name":     "Grace Hopper",
	"email":    "grace@example.com",
	"password": "cobol1959",
}

func TestControllerRegisterAndLogin(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/register", validRegistration)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "grace@example.com", body["email"])
	assert.Equal(t, "USER", body["role"])
	assert.NotEmpty(t, body["token"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "grace@example.com",
		"password": "cobol1959",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
}

func TestControllerErrorBodies(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/register", validRegistration)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	tests := []struct {
		name    string
		path    string
		body    any
		status  int
		code    string
		message string
	}{
		{
			name:    "duplicate email",
			path:    "/api/auth/register",
			body:    validRegistration,
			status:  fiber.StatusConflict,
			code:    auth.TextCodeEmailAlreadyRegistered,
			message: "Email already registered",
		},
		{
			name:    "unknown email",
			path:    "/api/auth/login",
			body:    map[string]string{"email": "nobody@example.com", "password": "x1"},
			status:  fiber.StatusNotFound,
			code:    auth.TextCodeUserNotFound,
			message: "User not found with the provided email address",
		},
		{
			name:    "wrong password",
			path:    "/api/auth/login",
			body:    map[string]string{"email": "grace@example.com", "password": "wrong1"},
			status:  fiber.StatusUnauthorized,
			code:    auth.TextCodeInvalidPassword,
			message: "Invalid password",
		},
		{
			name: "weak password",
			path: "/api/auth/register",
			body: map[string]string{
				"name": "Alan Turing", "email": "alan@example.com", "password": "password",
			},
			status: fiber.StatusUnprocessableEntity,
			code:   auth.TextCodePasswordPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, float64(tt.status), body["status"])
			assert.Equal(t, tt.path, body["path"])
			assert.NotEmpty(t, body["timestamp"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestControllerValidationFieldErrors(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "G", "email": "not-an-email", "password": "cobol1959",
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, auth.TextCodeInvalidRequest, body["code"])

	fields, ok := body["fieldErrors"].([]any)
	require.True(t, ok)
	names := []string{}
	for _, f := range fields {
		names = append(names, f.(map[string]any)["field"].(string))
	}
	assert.Equal(t, []string{"email", "name"}, names)
}

func TestControllerMalformedBody(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestControllerMe(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		app, _, _ := newTestApp(t, nil)
		resp, body := doJSON(t, app, http.MethodGet, "/api/auth/me", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, auth.TextCodeAuthenticationRequired, body["code"])
	})

	t.Run("authenticated", func(t *testing.T) {
		identity := &auth.AuthenticatedIdentity{Email: "grace@example.com", Role: auth.RoleUser}
		app, svc, _ := newTestApp(t, identity)
		_, err := svc.Register(context.Background(), auth.RegisterRequest{
			Name: "Grace Hopper", Email: "grace@example.com", Password: "cobol1959",
		})
		require.NoError(t, err)

		resp, body := doJSON(t, app, http.MethodGet, "/api/auth/me", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "grace@example.com", body["email"])
		assert.NotContains(t, body, "passwordHash")
		assert.NotContains(t, body, "PasswordHash")
	})
}

func TestControllerChangePassword(t *testing.T) {
	identity := &auth.AuthenticatedIdentity{Email: "grace@example.com", Role: auth.RoleUser}
	app, svc, _ := newTestApp(t, identity)
	ctx := context.Background()
	_, err := svc.Register(ctx, auth.RegisterRequest{
		Name: "Grace Hopper", Email: "grace@example.com", Password: "cobol1959",
	})
	require.NoError(t, err)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/change-password", map[string]string{
		"currentPassword": "cobol1959",
		"newPassword":     "flowmatic1955",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, err = svc.Login(ctx, auth.LoginRequest{Email: "grace@example.com", Password: "flowmatic1955"})
	assert.NoError(t, err)
}

func TestControllerLogoutAlwaysSucceeds(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/auth/logout", nil,
		fiber.HeaderAuthorization, "Bearer not-a-token")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestControllerDebugToken(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	_, body := doJSON(t, app, http.MethodGet, "/api/auth/debug-token", nil)
	assert.Equal(t, "no_token", body["status"])

	_, body = doJSON(t, app, http.MethodGet, "/api/auth/debug-token", nil,
		fiber.HeaderAuthorization, "Bearer abc.def.ghi")
	assert.Equal(t, "token_present", body["status"])
	assert.Equal(t, float64(len("Bearer abc.def.ghi")), body["tokenLength"])
	assert.NotContains(t, body, "token")
}

func TestControllerCreateFirstAdminOnce(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/create-admin", validRegistration)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ADMIN", body["role"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/auth/create-admin", map[string]string{
		"name": "Second Admin", "email": "second@example.com", "password": "cobol1959",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, auth.TextCodeAdminExists, body["code"])
}

func TestControllerUserCountRequiresAdmin(t *testing.T) {
	t.Run("user is forbidden", func(t *testing.T) {
		app, _, _ := newTestApp(t, &auth.AuthenticatedIdentity{Email: "u@example.com", Role: auth.RoleUser})
		resp, body := doJSON(t, app, http.MethodGet, "/api/admin/users/count", nil)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, auth.TextCodeInsufficientPrivileges, body["code"])
		assert.Equal(t, "Insufficient privileges. Required roles: [ADMIN], User role: USER", body["message"])
	})

	t.Run("admin sees counts", func(t *testing.T) {
		app, svc, _ := newTestApp(t, &auth.AuthenticatedIdentity{Email: "grace@example.com", Role: auth.RoleAdmin})
		_, err := svc.CreateFirstAdmin(context.Background(), auth.RegisterRequest{
			Name: "Grace Hopper", Email: "grace@example.com", Password: "cobol1959",
		})
		require.NoError(t, err)

		resp, body := doJSON(t, app, http.MethodGet, "/api/admin/users/count", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["total"])
		assert.Equal(t, map[string]any{"ADMIN": float64(1), "USER": float64(0)}, body["byRole"])
	})
}

func TestControllerLoginRateLimited(t *testing.T) {
	limiter := auth.NewRateLimiter(auth.RateLimiterConfig{Rate: 0.001, Burst: 2})
	app, _, _ := newTestApp(t, nil, auth.WithLoginLimiter(limiter))

	creds := map[string]string{"email": "nobody@example.com", "password": "x1"}
	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/auth/login", creds)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	}

	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/login", creds)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTooManyRequests, body["code"])
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
}
