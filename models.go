package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persisted identity record.
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name             string     `bun:"name,notnull" json:"name"`
	Email            string     `bun:"email,notnull,unique" json:"email"`
	Phone            string     `bun:"phone" json:"phone,omitempty"`
	PasswordHash     string     `bun:"password_hash" json:"-"`
	Role             Role       `bun:"role,notnull" json:"role"`
	TwoFactorSecret  string     `bun:"two_factor_secret" json:"-"`
	TwoFactorEnabled bool       `bun:"two_factor_enabled,notnull,default:false" json:"two_factor_enabled"`
	OAuth2Provider   string     `bun:"oauth2_provider" json:"oauth2_provider,omitempty"`
	OAuth2ProviderID string     `bun:"oauth2_provider_id" json:"-"`
	ProfilePicture   string     `bun:"profile_picture" json:"profile_picture,omitempty"`
	EmailVerified    bool       `bun:"email_verified,notnull,default:false" json:"email_verified"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	LoggedInAt       *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// Identity returns the request scoped view of the user.
func (u *User) Identity() *AuthenticatedIdentity {
	if u == nil {
		return nil
	}
	return &AuthenticatedIdentity{Email: u.Email, Role: u.Role}
}

// NormalizeEmail lower cases and trims an email so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserDTO is the public projection of a User.
type UserDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Role           Role   `json:"role"`
	OAuth2Provider string `json:"oauth2Provider,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	EmailVerified  bool   `json:"emailVerified"`
}

// NewUserDTO projects u.
func NewUserDTO(u *User) UserDTO {
	if u == nil {
		return UserDTO{}
	}
	return UserDTO{
		ID:             u.ID.String(),
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		Role:           u.Role,
		OAuth2Provider: u.OAuth2Provider,
		ProfilePicture: u.ProfilePicture,
		EmailVerified:  u.EmailVerified,
	}
}
