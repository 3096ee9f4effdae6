package github

import (
	"strconv"

	"github.com/goliatone/hr-auth/social"
)

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func mapProfile(user *githubUser, email string) *social.Profile {
	if user == nil {
		return nil
	}

	id := ""
	if user.ID != 0 {
		id = strconv.FormatInt(user.ID, 10)
	}

	return &social.Profile{
		ProviderUserID: id,
		Provider:       "github",
		Email:          email,
		EmailVerified:  true,
		Name:           user.Name,
		Username:       user.Login,
		AvatarURL:      user.AvatarURL,
		Raw: map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"email":      email,
			"avatar_url": user.AvatarURL,
			"html_url":   user.HTMLURL,
		},
	}
}
