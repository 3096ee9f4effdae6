package google

import (
	"strings"

	"github.com/goliatone/hr-auth/social"
)

// userInfo is the OpenID Connect userinfo document.
type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

// displayName prefers the full name claim and falls back to the name parts.
func (u *userInfo) displayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return strings.TrimSpace(u.GivenName + " " + u.FamilyName)
}

func toProfile(u *userInfo) *social.Profile {
	if u == nil {
		return nil
	}
	return &social.Profile{
		ProviderUserID: u.Sub,
		Provider:       providerName,
		Email:          u.Email,
		EmailVerified:  u.EmailVerified,
		Name:           u.displayName(),
		AvatarURL:      u.Picture,
		Raw: map[string]any{
			"sub":    u.Sub,
			"locale": u.Locale,
		},
	}
}
