package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// UserRepository is the bun backed CredentialStore.
type UserRepository struct {
	db               bun.IDB
	now              func() time.Time
	deterministicIDs bool
}

var _ CredentialStore = (*UserRepository)(nil)

// UserRepositoryOption configures UserRepository.
type UserRepositoryOption func(*UserRepository)

// WithDeterministicIDs derives new user IDs from the email with hashid, so
// the same email gets the same ID across environments.
func WithDeterministicIDs(enabled bool) UserRepositoryOption {
	return func(r *UserRepository) {
		r.deterministicIDs = enabled
	}
}

// WithRepositoryClock overrides the time source used for timestamps.
func WithRepositoryClock(now func() time.Time) UserRepositoryOption {
	return func(r *UserRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewUserRepository creates a repository over db.
func NewUserRepository(db bun.IDB, opts ...UserRepositoryOption) *UserRepository {
	r := &UserRepository{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CreateSchema creates the users table if it does not exist.
func (r *UserRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return WrapInternal(err, "failed to create users table")
	}
	return nil
}

// FindByEmail implements CredentialStore.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	user := new(User)
	err := r.db.NewSelect().
		Model(user).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal(err, "failed to find user by email")
	}
	return user, nil
}

// ExistsByEmail implements CredentialStore.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Exists(ctx)
	if err != nil {
		return false, WrapInternal(err, "failed to check user email")
	}
	return exists, nil
}

// Save inserts user when its ID is zero and updates it otherwise. A unique
// violation on email is reported as ErrEmailAlreadyRegistered.
func (r *UserRepository) Save(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, WrapInternal(errors.New("nil user"), "cannot save user")
	}

	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = DefaultRole
	}

	now := r.now().UTC()
	user.UpdatedAt = now

	if user.ID == uuid.Nil {
		id, err := r.newID(user.Email)
		if err != nil {
			return nil, WrapInternal(err, "failed to generate user id")
		}
		user.ID = id
		user.CreatedAt = now

		if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
			user.ID = uuid.Nil
			return nil, r.mapWriteError(err, "failed to insert user")
		}
		return user, nil
	}

	if _, err := r.db.NewUpdate().Model(user).WherePK().ExcludeColumn("created_at").Exec(ctx); err != nil {
		return nil, r.mapWriteError(err, "failed to update user")
	}
	return user, nil
}

// Count implements CredentialStore.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*User)(nil)).Count(ctx)
	if err != nil {
		return 0, WrapInternal(err, "failed to count users")
	}
	return n, nil
}

// CountByRole implements CredentialStore.
func (r *UserRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	n, err := r.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.role = ?", role).
		Count(ctx)
	if err != nil {
		return 0, WrapInternal(err, "failed to count users by role")
	}
	return n, nil
}

func (r *UserRepository) newID(email string) (uuid.UUID, error) {
	if r.deterministicIDs {
		return hashid.NewUUID(email)
	}
	return uuid.New(), nil
}

func (r *UserRepository) mapWriteError(err error, msg string) error {
	if isUniqueViolation(err) {
		return withSource(ErrEmailAlreadyRegistered, err, nil)
	}
	return WrapInternal(err, msg)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
