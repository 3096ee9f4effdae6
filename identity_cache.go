package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CacheStats reports lookups served by CachedCredentialStore.
type CacheStats interface {
	CacheHit()
	CacheMiss()
}

// CachedCredentialStore fronts a CredentialStore with a short lived LRU of
// successful email lookups. Concurrent misses for the same email share a
// single backend call. Writes go through and refresh the entry.
type CachedCredentialStore struct {
	next  CredentialStore
	cache *lru.LRU[string, User]
	group singleflight.Group
	stats CacheStats
}

var _ CredentialStore = (*CachedCredentialStore)(nil)

// NewCachedCredentialStore wraps next. A size or ttl of zero disables
// caching and returns next unchanged.
func NewCachedCredentialStore(next CredentialStore, size int, ttl time.Duration, stats CacheStats) CredentialStore {
	if size <= 0 || ttl <= 0 {
		return next
	}
	return &CachedCredentialStore{
		next:  next,
		cache: lru.NewLRU[string, User](size, nil, ttl),
		stats: stats,
	}
}

// FindByEmail implements CredentialStore. Callers get their own copy of the
// cached record.
func (s *CachedCredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	key := NormalizeEmail(email)
	if cached, ok := s.cache.Get(key); ok {
		s.hit()
		return &cached, nil
	}
	s.miss()

	// The shared lookup serves every waiter, so it must outlive the
	// cancellation of whichever caller started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		user, err := s.next.FindByEmail(shared, key)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, *user)
		return *user, nil
	})
	if err != nil {
		return nil, err
	}

	user := v.(User)
	return &user, nil
}

// ExistsByEmail implements CredentialStore.
func (s *CachedCredentialStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.next.ExistsByEmail(ctx, email)
}

// Save implements CredentialStore.
func (s *CachedCredentialStore) Save(ctx context.Context, user *User) (*User, error) {
	if user != nil {
		s.cache.Remove(NormalizeEmail(user.Email))
	}
	saved, err := s.next.Save(ctx, user)
	if err != nil {
		return nil, err
	}
	s.cache.Add(NormalizeEmail(saved.Email), *saved)
	return saved, nil
}

// Count implements CredentialStore.
func (s *CachedCredentialStore) Count(ctx context.Context) (int, error) {
	return s.next.Count(ctx)
}

// CountByRole implements CredentialStore.
func (s *CachedCredentialStore) CountByRole(ctx context.Context, role Role) (int, error) {
	return s.next.CountByRole(ctx, role)
}

type identityInvalidator interface {
	Invalidate(email string)
}

// Invalidate drops the cached record for email.
func (s *CachedCredentialStore) Invalidate(email string) {
	s.cache.Remove(NormalizeEmail(email))
}

func (s *CachedCredentialStore) hit() {
	if s.stats != nil {
		s.stats.CacheHit()
	}
}

func (s *CachedCredentialStore) miss() {
	if s.stats != nil {
		s.stats.CacheMiss()
	}
}
