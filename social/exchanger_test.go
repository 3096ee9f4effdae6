package social

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	auth "github.com/goliatone/hr-auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubProvider struct {
	name        string
	token       *oauth2.Token
	profile     *Profile
	exchangeErr error
	userInfoErr error
	block       bool

	mu        sync.Mutex
	exchanged int
}

func (s *stubProvider) Name() string        { return s.name }
func (s *stubProvider) DisplayName() string { return "Stub" }

func (s *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/authorize?" + url.Values{"state": {state}}.Encode()
}

func (s *stubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	s.mu.Lock()
	s.exchanged++
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	return s.token, nil
}

func (s *stubProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	if s.userInfoErr != nil {
		return nil, s.userInfoErr
	}
	return s.profile, nil
}

// countingStore records writes on top of the memory store.
type countingStore struct {
	*auth.MemoryCredentialStore
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(ctx context.Context, user *auth.User) (*auth.User, error) {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.MemoryCredentialStore.Save(ctx, user)
}

func newTokens(t *testing.T) *auth.TokenServiceImpl {
	t.Helper()
	tokens, err := auth.NewTokenService([]byte(testSecret), time.Hour, auth.WithTokenLogger(auth.NopLogger{}))
	require.NoError(t, err)
	return tokens
}

func goodProvider() *stubProvider {
	return &stubProvider{
		name:  "stub",
		token: &oauth2.Token{AccessToken: "access"},
		profile: &Profile{
			ProviderUserID: "42",
			Provider:       "stub",
			Email:          "Octo@Example.com",
			Name:           "Octo Cat",
			AvatarURL:      "https://img.example.com/42.png",
		},
	}
}

func newTestExchanger(t *testing.T, provider Provider, cfg Config, opts ...Option) (*Exchanger, *countingStore, *auth.TokenServiceImpl) {
	t.Helper()
	store := &countingStore{MemoryCredentialStore: auth.NewMemoryCredentialStore()}
	tokens := newTokens(t)
	opts = append([]Option{WithProvider(provider), WithLogger(auth.NopLogger{})}, opts...)
	return NewExchanger(store, tokens, cfg, opts...), store, tokens
}

func TestCompleteCreatesAccount(t *testing.T) {
	ex, store, tokens := newTestExchanger(t, goodProvider(), Config{})

	res, err := ex.Complete(context.Background(), "stub", "code", "")
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", res.Email)
	assert.Equal(t, "OAuth2 authentication successful", res.Message)

	subject, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", subject)

	user, err := store.FindByEmail(context.Background(), "octo@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Octo Cat", user.Name)
	assert.Empty(t, user.PasswordHash)
	assert.False(t, user.HasPassword())
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "stub", user.OAuth2Provider)
	assert.Equal(t, "42", user.OAuth2ProviderID)
	assert.Equal(t, "https://img.example.com/42.png", user.ProfilePicture)
}

func TestCompleteRefreshesExistingAccount(t *testing.T) {
	ex, store, _ := newTestExchanger(t, goodProvider(), Config{})
	ctx := context.Background()

	existing, err := store.MemoryCredentialStore.Save(ctx, &auth.User{
		Name:         "Existing Name",
		Email:        "octo@example.com",
		PasswordHash: "plain:secret1",
		Role:         auth.RoleAdmin,
	})
	require.NoError(t, err)

	res, err := ex.Complete(ctx, "stub", "code", "")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, res.Role)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "no duplicate account")

	user, err := store.FindByEmail(ctx, "octo@example.com")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, "Existing Name", user.Name)
	assert.Equal(t, "plain:secret1", user.PasswordHash)
	assert.Equal(t, "stub", user.OAuth2Provider)
	assert.True(t, user.EmailVerified)
}

func TestCompleteNameFallback(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"profile name", Profile{Name: "  Ada  ", Email: "ada@example.com"}, "Ada"},
		{"email local part", Profile{Email: "grace@example.com"}, "grace"},
		{"fixed fallback", Profile{Email: "@example.com"}, "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.DisplayName())
		})
	}
}

func TestCompleteFailuresNeverTouchStore(t *testing.T) {
	timeout := goodProvider()
	timeout.block = true

	tests := []struct {
		name      string
		provider  *stubProvider
		lookup    string
		operation string
	}{
		{"unknown provider", goodProvider(), "nope", OperationLookup},
		{"exchange error", &stubProvider{name: "stub", exchangeErr: errors.New("502 bad gateway")}, "stub", OperationExchange},
		{"missing access token", &stubProvider{name: "stub", token: &oauth2.Token{}}, "stub", OperationExchange},
		{"profile fetch fails", &stubProvider{name: "stub", token: &oauth2.Token{AccessToken: "a"}, userInfoErr: errors.New("401")}, "stub", OperationUserInfo},
		{"missing email", &stubProvider{name: "stub", token: &oauth2.Token{AccessToken: "a"}, profile: &Profile{ProviderUserID: "1"}}, "stub", OperationProfile},
		{"missing id", &stubProvider{name: "stub", token: &oauth2.Token{AccessToken: "a"}, profile: &Profile{Email: "a@b.com"}}, "stub", OperationProfile},
		{"timeout", timeout, "stub", OperationExchange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, store, _ := newTestExchanger(t, tt.provider, Config{Timeout: 20 * time.Millisecond})

			res, err := ex.Complete(context.Background(), tt.lookup, "code", "")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, auth.IsOAuth2Failed(err))
			assert.Equal(t, 0, store.saves)

			count, cerr := store.Count(context.Background())
			require.NoError(t, cerr)
			assert.Equal(t, 0, count)
		})
	}
}

func TestCompleteFailureMetadata(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		exchangeErr: &ProviderError{
			Provider: "stub", Operation: OperationExchange, Status: 400, Code: "invalid_grant",
		},
	}
	ex, _, _ := newTestExchanger(t, provider, Config{})

	_, err := ex.Complete(context.Background(), "stub", "code", "")
	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, "stub", rich.Metadata["provider"])
	assert.Equal(t, OperationExchange, rich.Metadata["operation"])
	assert.Equal(t, "invalid_grant", rich.Metadata["code"])
	assert.Equal(t, "OAuth2 authentication failed", rich.Message)
}

func TestCompleteRequireVerifiedEmail(t *testing.T) {
	provider := goodProvider()
	provider.profile.EmailVerified = false
	ex, store, _ := newTestExchanger(t, provider, Config{RequireVerifiedEmail: true})

	_, err := ex.Complete(context.Background(), "stub", "code", "")
	assert.True(t, auth.IsOAuth2Failed(err))
	assert.Equal(t, 0, store.saves)
}

func TestCompleteEmptyCode(t *testing.T) {
	provider := goodProvider()
	ex, _, _ := newTestExchanger(t, provider, Config{})

	_, err := ex.Complete(context.Background(), "stub", " ", "")
	assert.True(t, auth.IsOAuth2Failed(err))
	assert.Equal(t, 0, provider.exchanged)
}

func TestStateRoundTripThroughExchanger(t *testing.T) {
	states := NewJWTStateManager([]byte(testSecret), time.Minute)
	ex, _, _ := newTestExchanger(t, goodProvider(), Config{RequireState: true}, WithStateManager(states))
	ctx := context.Background()

	redirect, err := ex.BeginAuth(ctx, "stub", "/after")
	require.NoError(t, err)
	require.NotEmpty(t, redirect.State)
	assert.Contains(t, redirect.URL, url.Values{"state": {redirect.State}}.Encode())

	_, err = ex.Complete(ctx, "stub", "code", "")
	assert.True(t, auth.IsOAuth2Failed(err), "missing state")

	_, err = ex.Complete(ctx, "stub", "code", redirect.State+"x")
	assert.True(t, auth.IsOAuth2Failed(err), "tampered state")

	other, err := states.Encode(&OAuthState{Provider: "other"})
	require.NoError(t, err)
	_, err = ex.Complete(ctx, "stub", "code", other)
	assert.True(t, auth.IsOAuth2Failed(err), "state for another provider")

	_, err = ex.Complete(ctx, "stub", "code", redirect.State)
	assert.NoError(t, err)
}

func TestRequireStateWithoutManagerPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewExchanger(auth.NewMemoryCredentialStore(), newTokens(t), Config{RequireState: true})
	})
}

type oauthOutcomes struct {
	results []string
}

func (o *oauthOutcomes) ObserveOAuth2(provider, result string) {
	o.results = append(o.results, provider+":"+result)
}

func TestCompleteObserved(t *testing.T) {
	obs := &oauthOutcomes{}
	ex, _, _ := newTestExchanger(t, goodProvider(), Config{}, WithObserver(obs))

	_, _ = ex.Complete(context.Background(), "stub", "code", "")
	_, _ = ex.Complete(context.Background(), "nope", "code", "")

	assert.Equal(t, []string{"stub:success", "nope:failure"}, obs.results)
	assert.Equal(t, []string{"stub"}, ex.Providers())
}

type failingLookupStore struct {
	*auth.MemoryCredentialStore
}

func (failingLookupStore) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, auth.WrapInternal(errors.New("connection reset"), "find user")
}

func TestCompleteStoreFaultIsNotOAuth2Failure(t *testing.T) {
	var (
		mu     sync.Mutex
		events []auth.ActivityEvent
	)
	sink := auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		return nil
	})

	store := failingLookupStore{MemoryCredentialStore: auth.NewMemoryCredentialStore()}
	ex := NewExchanger(store, newTokens(t), Config{},
		WithProvider(goodProvider()),
		WithLogger(auth.NopLogger{}),
		WithActivitySink(sink),
	)

	_, err := ex.Complete(context.Background(), "stub", "code", "")
	require.Error(t, err)
	assert.False(t, auth.IsOAuth2Failed(err))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, auth.ActivityEventSocialFailure, events[0].EventType)
	assert.Equal(t, OperationResolve, events[0].Metadata["operation"])
}

func TestCompleteFailureKeepsCauseTextCode(t *testing.T) {
	provider := goodProvider()
	provider.profile.EmailVerified = false
	ex, _, _ := newTestExchanger(t, provider, Config{RequireVerifiedEmail: true})

	_, err := ex.Complete(context.Background(), "stub", "code", "")
	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, auth.TextCodeOAuth2Failed, rich.TextCode)
	assert.Equal(t, TextCodeEmailNotVerified, rich.Metadata["cause"])
	assert.Equal(t, OperationProfile, rich.Metadata["operation"])
}

func TestSocialErrorsCarryCategories(t *testing.T) {
	assert.Equal(t, goerrors.CategoryNotFound, ErrProviderNotFound.Category)
	assert.Equal(t, goerrors.CategoryBadInput, ErrInvalidState.Category)
	assert.Equal(t, TextCodeStateExpired, ErrStateExpired.TextCode)
	assert.Equal(t, TextCodeIncompleteProfile, ErrIncompleteProfile.TextCode)
}
