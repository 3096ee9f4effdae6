package authfilter

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization

	// ErrNoCredential means the request carries no credential at all.
	ErrNoCredential = errors.New("no credential")
	// ErrMalformedCredential means a credential source is present but does
	// not hold a usable token.
	ErrMalformedCredential = errors.New("missing or malformed JWT")
)

type TokenExtractor func(c *fiber.Ctx) (string, error)

// ExtractRawToken runs the extractors in order. The first token found
// wins; a malformed source takes precedence over absent ones.
func ExtractRawToken(c *fiber.Ctx, extractors []TokenExtractor) (string, error) {
	result := ErrNoCredential
	for _, extractor := range extractors {
		raw, err := extractor(c)
		if err == nil && raw != "" {
			return raw, nil
		}
		if errors.Is(err, ErrMalformedCredential) {
			result = err
		}
	}
	return "", result
}

// GetExtractors parses a lookup such as "header:Authorization,cookie:jwt".
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// tokenFromHeader reads "<scheme> <token>" from header. Any other scheme,
// or the scheme with an empty token, is malformed.
func tokenFromHeader(header, authScheme string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		value := strings.TrimSpace(c.Get(header))
		if value == "" {
			return "", ErrNoCredential
		}
		l := len(authScheme)
		if len(value) < l || !strings.EqualFold(value[:l], authScheme) {
			return "", ErrMalformedCredential
		}
		rest := value[l:]
		if rest != "" && rest[0] != ' ' {
			return "", ErrMalformedCredential
		}
		token := strings.TrimSpace(rest)
		if token == "" {
			return "", ErrMalformedCredential
		}
		return token, nil
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Query(param); token != "" {
			return token, nil
		}
		return "", ErrNoCredential
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Cookies(name); token != "" {
			return token, nil
		}
		return "", ErrNoCredential
	}
}
