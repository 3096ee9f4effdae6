package social

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// Provider is an OAuth2 login provider.
type Provider interface {
	// Name returns the provider identifier used in routes ("github", "google").
	Name() string

	// DisplayName is the human readable provider name.
	DisplayName() string

	// AuthCodeURL returns the URL to redirect users for authorization.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the user's profile using the access token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// Profile is normalized user information from a provider.
type Profile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	Username       string
	AvatarURL      string
	Raw            map[string]any
}

// DisplayName returns the name to store on a new account: the profile
// name, else the email local part, else "User".
func (p *Profile) DisplayName() string {
	if p == nil {
		return "User"
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return "User"
}
