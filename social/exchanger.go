package social

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	auth "github.com/goliatone/hr-auth"
)

const successMessage = "OAuth2 authentication successful"

// Config configures the Exchanger.
type Config struct {
	// Timeout bounds the remote part of Complete. Defaults to 10s.
	Timeout time.Duration
	// RequireState rejects callbacks without a valid state parameter.
	RequireState bool
	// RequireVerifiedEmail rejects profiles whose email the provider has
	// not verified.
	RequireVerifiedEmail bool
	// DefaultRole is given to accounts created on first login.
	DefaultRole auth.Role
}

// Observer receives one call per completed exchange.
type Observer interface {
	ObserveOAuth2(provider, result string)
}

// AuthRedirect is returned by BeginAuth.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// Exchanger turns a provider authorization code into a local token.
type Exchanger struct {
	providers map[string]Provider
	store     auth.CredentialStore
	tokens    auth.TokenService
	states    StateManager
	config    Config
	sink      auth.ActivitySink
	logger    auth.Logger
	observer  Observer
}

// Option configures the Exchanger.
type Option func(*Exchanger)

// WithProvider registers a provider.
func WithProvider(provider Provider) Option {
	return func(e *Exchanger) {
		if provider == nil {
			return
		}
		e.providers[provider.Name()] = provider
	}
}

// WithStateManager sets the state manager.
func WithStateManager(sm StateManager) Option {
	return func(e *Exchanger) {
		e.states = sm
	}
}

// WithActivitySink sets the activity sink for audit logging.
func WithActivitySink(sink auth.ActivitySink) Option {
	return func(e *Exchanger) {
		e.sink = sink
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(e *Exchanger) {
		e.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(e *Exchanger) {
		e.observer = o
	}
}

// NewExchanger creates an Exchanger.
func NewExchanger(store auth.CredentialStore, tokens auth.TokenService, config Config, opts ...Option) *Exchanger {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.DefaultRole == "" {
		config.DefaultRole = auth.DefaultRole
	}

	e := &Exchanger{
		providers: map[string]Provider{},
		store:     store,
		tokens:    tokens,
		config:    config,
		logger:    auth.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.store == nil || e.tokens == nil {
		panic("AUTH: social exchanger requires a credential store and a token service.")
	}

	if config.RequireState && e.states == nil {
		panic("AUTH: social exchanger configured with RequireState but no StateManager.")
	}

	e.sink = auth.NormalizeActivitySink(e.sink)

	return e
}

// Providers lists the registered provider names.
func (e *Exchanger) Providers() []string {
	names := make([]string, 0, len(e.providers))
	for name := range e.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider returns a registered provider.
func (e *Exchanger) Provider(name string) (Provider, bool) {
	p, ok := e.providers[name]
	return p, ok
}

// BeginAuth builds the provider authorization URL.
func (e *Exchanger) BeginAuth(_ context.Context, name, redirectURL string) (*AuthRedirect, error) {
	provider, ok := e.providers[name]
	if !ok {
		return nil, authFailed(name, OperationLookup, ErrProviderNotFound)
	}

	var token string
	if e.states != nil {
		var err error
		token, err = e.states.Encode(&OAuthState{Provider: name, RedirectURL: redirectURL})
		if err != nil {
			return nil, auth.WrapInternal(err, "encode oauth state")
		}
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(token),
		State:    token,
		Provider: name,
	}, nil
}

// Complete runs exchange, profile fetch, resolve-or-create and token
// issuance. Remote failures never reach the credential store.
func (e *Exchanger) Complete(ctx context.Context, name, code, state string) (res *auth.AuthResponse, err error) {
	defer func() {
		e.observe(name, err)
	}()

	provider, ok := e.providers[name]
	if !ok {
		return nil, e.fail(ctx, name, OperationLookup, ErrProviderNotFound)
	}

	if err := e.checkState(name, state); err != nil {
		return nil, e.fail(ctx, name, OperationState, err)
	}

	if strings.TrimSpace(code) == "" {
		return nil, e.fail(ctx, name, OperationExchange, errors.New("missing authorization code"))
	}

	profile, err := e.fetchProfile(ctx, provider, code)
	if err != nil {
		return nil, err
	}

	user, created, err := e.resolve(ctx, name, profile)
	if err != nil {
		return nil, e.fault(ctx, name, OperationResolve, err)
	}

	token, err := e.tokens.Issue(user.Email)
	if err != nil {
		return nil, e.fault(ctx, name, OperationIssue, err)
	}

	auth.RecordActivity(ctx, e.sink, e.logger, auth.ActivityEvent{
		EventType: auth.ActivityEventSocialLogin,
		Email:     user.Email,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"provider": name,
			"created":  created,
		},
	})

	e.logger.Info("oauth2 login", "provider", name, "email", user.Email, "created", created)

	return &auth.AuthResponse{
		Token:   token,
		Email:   user.Email,
		Name:    user.Name,
		Role:    user.Role,
		Message: successMessage,
	}, nil
}

func (e *Exchanger) fetchProfile(ctx context.Context, provider Provider, code string) (*Profile, error) {
	name := provider.Name()

	remote, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	token, err := provider.Exchange(remote, code)
	if err != nil {
		return nil, e.fail(ctx, name, OperationExchange, err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, e.fail(ctx, name, OperationExchange, errors.New("missing access token"))
	}

	profile, err := provider.UserInfo(remote, token)
	if err != nil {
		return nil, e.fail(ctx, name, OperationUserInfo, err)
	}

	if profile == nil || strings.TrimSpace(profile.Email) == "" || strings.TrimSpace(profile.ProviderUserID) == "" {
		return nil, e.fail(ctx, name, OperationProfile, ErrIncompleteProfile)
	}

	if e.config.RequireVerifiedEmail && !profile.EmailVerified {
		return nil, e.fail(ctx, name, OperationProfile, ErrEmailNotVerified)
	}

	return profile, nil
}

// resolve finds the account by email and refreshes its provider fields, or
// creates a password-less account. A concurrent registration of the same
// email is retried once as an update.
func (e *Exchanger) resolve(ctx context.Context, name string, profile *Profile) (*auth.User, bool, error) {
	email := auth.NormalizeEmail(profile.Email)

	for attempt := 0; attempt < 2; attempt++ {
		user, err := e.store.FindByEmail(ctx, email)
		switch {
		case err == nil:
			applyProfile(user, name, profile)
			saved, err := e.store.Save(ctx, user)
			return saved, false, err

		case auth.IsUserNotFound(err):
			user = &auth.User{
				Name:          profile.DisplayName(),
				Email:         email,
				Role:          e.config.DefaultRole,
				EmailVerified: true,
			}
			applyProfile(user, name, profile)
			saved, err := e.store.Save(ctx, user)
			if auth.IsEmailAlreadyRegistered(err) {
				continue
			}
			return saved, err == nil, err

		default:
			return nil, false, err
		}
	}

	return nil, false, auth.ErrEmailAlreadyRegistered
}

func applyProfile(user *auth.User, name string, profile *Profile) {
	user.OAuth2Provider = name
	user.OAuth2ProviderID = profile.ProviderUserID
	if profile.AvatarURL != "" {
		user.ProfilePicture = profile.AvatarURL
	}
	user.EmailVerified = true
}

func (e *Exchanger) checkState(name, state string) error {
	if state == "" {
		if e.config.RequireState {
			return ErrInvalidState
		}
		return nil
	}

	if e.states == nil {
		return nil
	}

	decoded, err := e.states.Decode(state)
	if err != nil {
		return err
	}
	if decoded.Provider != name {
		return ErrInvalidState
	}
	return nil
}

// fail records a remote or request failure and folds it into
// auth.ErrOAuth2AuthenticationFailed.
func (e *Exchanger) fail(ctx context.Context, name, operation string, err error) error {
	e.logger.Warn("oauth2 exchange failed", "provider", name, "operation", operation, "error", err)
	e.recordFailure(ctx, name, operation)
	return authFailed(name, operation, err)
}

// fault records a local store or token failure. The error is returned
// unchanged so it keeps its own status.
func (e *Exchanger) fault(ctx context.Context, name, operation string, err error) error {
	e.logger.Error("oauth2 login failed", "provider", name, "operation", operation, "error", err)
	e.recordFailure(ctx, name, operation)
	return err
}

func (e *Exchanger) recordFailure(ctx context.Context, name, operation string) {
	auth.RecordActivity(ctx, e.sink, e.logger, auth.ActivityEvent{
		EventType: auth.ActivityEventSocialFailure,
		Metadata: map[string]any{
			"provider":  name,
			"operation": operation,
		},
	})
}

func (e *Exchanger) observe(name string, err error) {
	if e.observer == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	e.observer.ObserveOAuth2(name, result)
}
