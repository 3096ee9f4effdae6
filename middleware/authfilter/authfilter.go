package authfilter

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	auth "github.com/goliatone/hr-auth"
)

// Outcome names the result of a single filter pass.
type Outcome string

const (
	OutcomeExempt          Outcome = "exempt"
	OutcomeAnonymous       Outcome = "anonymous"
	OutcomeAuthenticated   Outcome = "authenticated"
	OutcomeExpired         Outcome = "expired"
	OutcomeMalformed       Outcome = "malformed"
	OutcomeUnknownIdentity Outcome = "unknown_identity"
	OutcomeError           Outcome = "error"
)

// Policy decides what happens to a request carrying a bad credential.
type Policy string

const (
	// PolicyReject answers 401 with the structured error body.
	PolicyReject Policy = "reject"
	// PolicyContinue lets the request through without an identity.
	PolicyContinue Policy = "continue"
)

// ParsePolicy accepts "reject" or "continue". Empty input is PolicyReject.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyContinue:
		return PolicyContinue, nil
	}
	return "", fmt.Errorf("unknown invalid token policy %q", s)
}

// Observer receives one call per filter pass.
type Observer interface {
	ObserveFilterOutcome(outcome string)
}

type Config struct {
	// Tokens validates the bearer token. Required.
	Tokens auth.TokenService
	// Store resolves the token subject to an identity. Required.
	Store auth.CredentialStore
	// ExemptPaths are skipped before any header inspection. Entries are
	// path prefixes, optionally scoped to a method: "GET /api/files/public".
	// A bare "/" matches only the root path.
	ExemptPaths []string
	// Policy applies to expired, malformed and unknown credentials.
	Policy Policy
	// TokenLookup lists credential sources: "header:Authorization,cookie:jwt".
	TokenLookup string
	// AuthScheme is the header scheme, "Bearer" by default.
	AuthScheme string
	// ErrorHandler renders rejections. The default hands the error to the
	// app error handler.
	ErrorHandler   fiber.ErrorHandler
	SuccessHandler fiber.Handler
	Logger         auth.Logger
	Observer       Observer
}

// DefaultExemptPaths is the public route allow-list of the HR service.
func DefaultExemptPaths() []string {
	return []string{
		"/api/auth/login",
		"/api/auth/register",
		"/api/auth/logout",
		"/api/auth/debug-token",
		"/api/auth/oauth2",
		"/api/translations",
		"GET /api/files/public",
		"GET /api/files/all",
		"GET /api/files/search",
		"GET /api/files/type",
		"GET /api/files/recent",
		"/swagger-ui",
		"/swagger-ui.html",
		"/swagger-resources",
		"/webjars",
		"/v2/api-docs",
		"/v3/api-docs",
		"/favicon.ico",
		"/error",
		"/healthz",
		"/metrics",
		"/",
	}
}

// New returns the authentication filter.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	exempt := parseExemptions(cfg.ExemptPaths)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if exempt.match(c.Method(), c.Path()) {
			cfg.record(c, OutcomeExempt, nil)
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err == ErrNoCredential {
			cfg.record(c, OutcomeAnonymous, nil)
			return c.Next()
		}
		if err != nil {
			return cfg.reject(c, OutcomeMalformed, auth.ErrTokenMalformed)
		}

		subject, err := cfg.Tokens.Validate(raw)
		if err != nil {
			if auth.IsTokenExpired(err) {
				return cfg.reject(c, OutcomeExpired, err)
			}
			return cfg.reject(c, OutcomeMalformed, err)
		}

		user, err := cfg.Store.FindByEmail(c.UserContext(), subject)
		if err != nil {
			if auth.IsUserNotFound(err) {
				return cfg.reject(c, OutcomeUnknownIdentity, auth.ErrAuthenticationRequired)
			}
			cfg.record(c, OutcomeError, err)
			return cfg.ErrorHandler(c, auth.WrapInternal(err, "resolve token subject"))
		}

		auth.SetIdentity(c, user.Identity())
		cfg.record(c, OutcomeAuthenticated, nil)
		return cfg.SuccessHandler(c)
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Tokens == nil {
		panic("AUTH: auth filter configuration: Tokens is required.")
	}

	if cfg.Store == nil {
		panic("AUTH: auth filter configuration: Store is required.")
	}

	if cfg.Policy == "" {
		cfg.Policy = PolicyReject
	}

	if cfg.ExemptPaths == nil {
		cfg.ExemptPaths = DefaultExemptPaths()
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ *fiber.Ctx, err error) error {
			return err
		}
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}

	return cfg
}

func (cfg Config) reject(c *fiber.Ctx, outcome Outcome, err error) error {
	cfg.record(c, outcome, err)
	if cfg.Policy == PolicyContinue {
		return c.Next()
	}
	return cfg.ErrorHandler(c, err)
}

func (cfg Config) record(c *fiber.Ctx, outcome Outcome, err error) {
	if cfg.Observer != nil {
		cfg.Observer.ObserveFilterOutcome(string(outcome))
	}

	switch outcome {
	case OutcomeExempt, OutcomeAnonymous, OutcomeAuthenticated:
		cfg.Logger.Debug("auth filter", "outcome", outcome, "method", c.Method(), "path", c.Path())
	case OutcomeError:
		cfg.Logger.Error("auth filter", "outcome", outcome, "path", c.Path(), "error", err)
	default:
		cfg.Logger.Warn("auth filter",
			"outcome", outcome,
			"policy", cfg.Policy,
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}
}
