package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCredentialStore is an in process CredentialStore. Email uniqueness
// is enforced under the write lock, mirroring the database constraint.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	users map[string]User
	now   func() time.Time
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)

// NewMemoryCredentialStore returns an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		users: map[string]User{},
		now:   time.Now,
	}
}

// FindByEmail implements CredentialStore.
func (s *MemoryCredentialStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// ExistsByEmail implements CredentialStore.
func (s *MemoryCredentialStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[NormalizeEmail(email)]
	return ok, nil
}

// Save implements CredentialStore.
func (s *MemoryCredentialStore) Save(_ context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = DefaultRole
	}
	now := s.now().UTC()
	user.UpdatedAt = now

	existing, taken := s.users[user.Email]
	if user.ID == uuid.Nil {
		if taken {
			return nil, ErrEmailAlreadyRegistered
		}
		user.ID = uuid.New()
		user.CreatedAt = now
	} else if taken && existing.ID != user.ID {
		return nil, ErrEmailAlreadyRegistered
	}

	s.users[user.Email] = *user
	out := *user
	return &out, nil
}

// Count implements CredentialStore.
func (s *MemoryCredentialStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// CountByRole implements CredentialStore.
func (s *MemoryCredentialStore) CountByRole(_ context.Context, role Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}
