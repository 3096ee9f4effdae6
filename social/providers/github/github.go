package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/goliatone/hr-auth/social"
)

const (
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"read:user", "user:email"}
}

// Provider implements social.Provider for GitHub.
type Provider struct {
	config     Config
	oauth      *oauth2.Config
	httpClient *http.Client
}

var _ social.Provider = (*Provider)(nil)

// New creates a new GitHub provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return "github"
}

// DisplayName implements social.Provider.
func (p *Provider) DisplayName() string {
	return "GitHub"
}

// AuthCodeURL implements social.Provider.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange implements social.Provider.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			status := 0
			if rerr.Response != nil {
				status = rerr.Response.StatusCode
			}
			return nil, providerError(social.OperationExchange, status, rerr.ErrorCode, rerr.ErrorDescription, err)
		}
		return nil, providerError(social.OperationExchange, 0, "", "", err)
	}

	return token, nil
}

// UserInfo implements social.Provider. The address comes from the emails
// endpoint: primary first, then the first verified, then the first listed.
// GitHub only lists confirmed addresses there so the profile is marked
// verified.
func (p *Provider) UserInfo(ctx context.Context, token *oauth2.Token) (*social.Profile, error) {
	if token == nil {
		return nil, providerError(social.OperationUserInfo, 0, "missing_token", "missing access token", nil)
	}

	var user githubUser
	if err := p.getJSON(ctx, social.OperationUserInfo, p.config.UserURL, token.AccessToken, &user); err != nil {
		return nil, err
	}

	var emails []githubEmail
	if err := p.getJSON(ctx, social.OperationEmails, p.config.EmailsURL, token.AccessToken, &emails); err != nil {
		if user.Email == "" {
			return nil, err
		}
		emails = nil
	}

	email := selectEmail(emails)
	if email == "" {
		email = user.Email
	}

	return mapProfile(&user, email), nil
}

func (p *Provider) getJSON(ctx context.Context, operation, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return providerError(operation, 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providerError(operation, resp.StatusCode, "", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		return providerError(operation, resp.StatusCode, "", apiErrorMessage(body), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return providerError(operation, resp.StatusCode, "invalid_response", "failed to decode response", err)
	}

	return nil
}

func selectEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			return e.Email
		}
	}

	for _, e := range emails {
		if e.Verified && e.Email != "" {
			return e.Email
		}
	}

	for _, e := range emails {
		if e.Email != "" {
			return e.Email
		}
	}

	return ""
}

type githubAPIError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func apiErrorMessage(body []byte) string {
	var apiErr githubAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "github request failed"
	}

	return msg
}

func providerError(operation string, status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    "github",
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}
