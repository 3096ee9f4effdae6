package auth

import (
	"github.com/gofiber/fiber/v2"
)

// RequireRoles gates a route behind an exact role set. It expects the
// authentication filter to have run earlier in the chain.
func RequireRoles(roles ...Role) fiber.Handler {
	req := NewRoleRequirement(roles...)
	return func(c *fiber.Ctx) error {
		identity, _ := IdentityFromFiber(c)
		if err := Authorize(identity, req); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireIdentity rejects requests without an authenticated identity.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := IdentityFromFiber(c); !ok {
			return ErrAuthenticationRequired
		}
		return c.Next()
	}
}
