package auth_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	auth "github.com/goliatone/hr-auth"
)

// MockCredentialStore implements auth.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockCredentialStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) Save(ctx context.Context, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	saved, _ := args.Get(0).(*auth.User)
	return saved, args.Error(1)
}

func (m *MockCredentialStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockCredentialStore) CountByRole(ctx context.Context, role auth.Role) (int, error) {
	args := m.Called(ctx, role)
	return args.Int(0), args.Error(1)
}

// plainHasher keeps tests fast; the hash is the password with a prefix.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", auth.ErrNoEmptyString
	}
	return "plain:" + plain, nil
}

func (plainHasher) Matches(plain, hash string) bool {
	return hash != "" && hash == "plain:"+plain
}

type countingStats struct {
	hits   int
	misses int
}

func (s *countingStats) CacheHit()  { s.hits++ }
func (s *countingStats) CacheMiss() { s.misses++ }
