package social

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	auth "github.com/goliatone/hr-auth"
)

// HTTPController serves the OAuth2 authorize and callback routes.
type HTTPController struct {
	exchanger *Exchanger
	config    HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/api/auth/oauth2")
	PathPrefix string

	// FrontendCallbackURL receives the callback outcome as query parameters.
	FrontendCallbackURL string

	Logger auth.Logger
}

// NewHTTPController creates a new social auth HTTP controller.
func NewHTTPController(exchanger *Exchanger, cfg HTTPConfig) *HTTPController {
	if exchanger == nil {
		panic("Missing Exchanger in social controller...")
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/api/auth/oauth2"
	}
	cfg.PathPrefix = strings.TrimRight(cfg.PathPrefix, "/")
	if cfg.FrontendCallbackURL == "" {
		cfg.FrontendCallbackURL = "http://localhost:3000/oauth-callback"
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}

	return &HTTPController{
		exchanger: exchanger,
		config:    cfg,
	}
}

// RegisterRoutes registers the OAuth2 routes on r.
func (c *HTTPController) RegisterRoutes(r fiber.Router) {
	r.Get(c.config.PathPrefix+"/:provider/authorize", c.Authorize)
	r.Get(c.config.PathPrefix+"/:provider/callback", c.Callback)
}

// Authorize returns the provider authorization URL.
func (c *HTTPController) Authorize(ctx *fiber.Ctx) error {
	name := ctx.Params("provider")
	provider, ok := c.exchanger.Provider(name)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Unknown OAuth2 provider")
	}

	redirect, err := c.exchanger.BeginAuth(ctx.UserContext(), name, ctx.Query("redirect_url"))
	if err != nil {
		return err
	}

	return ctx.JSON(fiber.Map{
		"authorizationUrl": redirect.URL,
		"message":          "Redirect user to this URL for " + provider.DisplayName() + " OAuth2 authentication",
	})
}

// Callback completes the exchange and redirects to the frontend. Failures
// carry a generic message only.
func (c *HTTPController) Callback(ctx *fiber.Ctx) error {
	name := ctx.Params("provider")

	if denied := ctx.Query("error"); denied != "" {
		c.config.Logger.Warn("oauth2 callback denied by provider", "provider", name, "error", denied)
		return c.redirectFailure(ctx)
	}

	res, err := c.exchanger.Complete(ctx.UserContext(), name, ctx.Query("code"), ctx.Query("state"))
	if err != nil {
		c.config.Logger.Error("oauth2 callback failed", "provider", name, "error", err)
		return c.redirectFailure(ctx)
	}

	return ctx.Redirect(appendQuery(c.config.FrontendCallbackURL, url.Values{
		"token":   {res.Token},
		"email":   {res.Email},
		"message": {res.Message},
		"success": {"true"},
	}), fiber.StatusFound)
}

func (c *HTTPController) redirectFailure(ctx *fiber.Ctx) error {
	return ctx.Redirect(appendQuery(c.config.FrontendCallbackURL, url.Values{
		"success": {"false"},
		"message": {auth.ErrOAuth2AuthenticationFailed.Message},
	}), fiber.StatusFound)
}

func appendQuery(rawURL string, values url.Values) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		for k, v := range values {
			query[k] = v
		}
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + values.Encode()
}
