package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthControllerRoutes holds the absolute paths served by AuthController.
type AuthControllerRoutes struct {
	Register       string
	Login          string
	Logout         string
	CreateAdmin    string
	Me             string
	ChangePassword string
	DebugToken     string
	UserCount      string
}

// DefaultAuthControllerRoutes returns the default route table.
func DefaultAuthControllerRoutes() *AuthControllerRoutes {
	return &AuthControllerRoutes{
		Register:       "/api/auth/register",
		Login:          "/api/auth/login",
		Logout:         "/api/auth/logout",
		CreateAdmin:    "/api/auth/create-admin",
		Me:             "/api/auth/me",
		ChangePassword: "/api/auth/change-password",
		DebugToken:     "/api/auth/debug-token",
		UserCount:      "/api/admin/users/count",
	}
}

// AuthController serves the credential endpoints.
type AuthController struct {
	Logger  Logger
	Service *Service
	Routes  *AuthControllerRoutes
	Limiter *RateLimiter
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Logger = logger
		return a
	}
}

// WithControllerRoutes replaces the route table.
func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Routes = routes
		return a
	}
}

// WithLoginLimiter guards the login and register routes.
func WithLoginLimiter(limiter *RateLimiter) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Limiter = limiter
		return a
	}
}

func NewAuthController(svc *Service, opts ...AuthControllerOption) *AuthController {
	if svc == nil {
		panic("Missing Service in auth controller...")
	}

	a := &AuthController{
		Logger:  defLogger{},
		Service: svc,
		Routes:  DefaultAuthControllerRoutes(),
	}

	for _, opt := range opts {
		a = opt(a)
	}

	return a
}

// RegisterRoutes mounts the controller on r. The authentication filter is
// expected to run before these handlers.
func (a *AuthController) RegisterRoutes(r fiber.Router) {
	limited := []fiber.Handler{}
	if a.Limiter != nil {
		limited = append(limited, a.Limiter.Handler())
	}

	r.Post(a.Routes.Register, append(limited, a.Register)...)
	r.Post(a.Routes.Login, append(limited, a.Login)...)
	r.Post(a.Routes.Logout, a.Logout)
	r.Post(a.Routes.CreateAdmin, append(limited, a.CreateAdmin)...)
	r.Get(a.Routes.Me, RequireIdentity(), a.Me)
	r.Post(a.Routes.ChangePassword, RequireIdentity(), a.ChangePassword)
	r.Get(a.Routes.DebugToken, a.DebugToken)
	r.Get(a.Routes.UserCount, RequireRoles(RoleAdmin), a.UserCount)
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := bindPayload(c, payload); err != nil {
		return err
	}

	res, err := a.Service.Register(c.UserContext(), *payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := bindPayload(c, payload); err != nil {
		return err
	}

	res, err := a.Service.Login(c.UserContext(), *payload)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Logout accepts any caller. The bearer token, when valid, only serves to
// name the caller in the activity log.
func (a *AuthController) Logout(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c)
	if !ok {
		if email := a.bearerSubject(c); email != "" {
			identity = &AuthenticatedIdentity{Email: email}
		}
	}

	if identity != nil {
		a.Logger.Info("logout request", "email", identity.Email)
	} else {
		a.Logger.Info("logout request with no or invalid token")
	}

	if err := a.Service.Logout(c.UserContext(), identity); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func (a *AuthController) CreateAdmin(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := bindPayload(c, payload); err != nil {
		return err
	}

	res, err := a.Service.CreateFirstAdmin(c.UserContext(), *payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	identity, _ := IdentityFromFiber(c)
	user, err := a.Service.CurrentUser(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(NewUserDTO(user))
}

func (a *AuthController) ChangePassword(c *fiber.Ctx) error {
	payload := new(ChangePasswordRequest)
	if err := bindPayload(c, payload); err != nil {
		return err
	}

	identity, _ := IdentityFromFiber(c)
	if err := a.Service.ChangePassword(c.UserContext(), identity, *payload); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}

// DebugToken reports whether a bearer header reached the server. The token
// itself is never echoed.
func (a *AuthController) DebugToken(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	a.Logger.Debug("debug token request", "header_present", header != "")

	if !strings.HasPrefix(header, bearerPrefix) {
		return c.JSON(fiber.Map{
			"status":  "no_token",
			"message": "No Authorization header or invalid format",
		})
	}

	return c.JSON(fiber.Map{
		"status":      "token_present",
		"message":     "Token header received",
		"tokenLength": len(header),
	})
}

func (a *AuthController) UserCount(c *fiber.Ctx) error {
	counts, total, err := a.Service.UserCounts(c.UserContext())
	if err != nil {
		return err
	}

	byRole := make(map[string]int, len(counts))
	for role, n := range counts {
		byRole[role.String()] = n
	}

	return c.JSON(fiber.Map{
		"total":  total,
		"byRole": byRole,
	})
}

const bearerPrefix = "Bearer "

func (a *AuthController) bearerSubject(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	email, err := a.Service.TokenService().Validate(strings.TrimPrefix(header, bearerPrefix))
	if err != nil {
		return ""
	}
	return email
}

func bindPayload(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		return withSource(ErrInvalidRequest, err, nil)
	}
	return nil
}
