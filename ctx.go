package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// LocalsKey is the fiber locals key under which the filter stores the
// AuthenticatedIdentity.
const LocalsKey = "auth.identity"

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// AuthenticatedIdentity is what the authentication filter attaches to a
// request once a token has been validated and resolved.
type AuthenticatedIdentity struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity *AuthenticatedIdentity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*AuthenticatedIdentity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityCtxKey).(*AuthenticatedIdentity)
	return identity, ok && identity != nil
}

// SetIdentity attaches identity to the fiber request, both as a local and
// on the user context.
func SetIdentity(c *fiber.Ctx, identity *AuthenticatedIdentity) {
	c.Locals(LocalsKey, identity)
	c.SetUserContext(WithIdentity(c.UserContext(), identity))
}

// IdentityFromFiber returns the identity attached by SetIdentity.
func IdentityFromFiber(c *fiber.Ctx) (*AuthenticatedIdentity, bool) {
	identity, ok := c.Locals(LocalsKey).(*AuthenticatedIdentity)
	if ok && identity != nil {
		return identity, true
	}
	return IdentityFromContext(c.UserContext())
}
