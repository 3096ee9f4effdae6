package auth

import (
	"context"
	"fmt"
	"strings"
)

// Logger is the logging contract used across the module. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CredentialStore persists user records. FindByEmail returns
// ErrUserNotFound when no record matches.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, user *User) (*User, error)
	Count(ctx context.Context) (int, error)
	CountByRole(ctx context.Context, role Role) (int, error)
}

// PasswordHasher is a one way adaptive hash.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Matches(plain, hash string) bool
}

// TokenService issues and validates bearer tokens for a subject.
type TokenService interface {
	Issue(subject string) (string, error)
	Validate(token string) (string, error)
}

// TwoFactorVerifier checks a time based one time code against a shared
// secret.
type TwoFactorVerifier interface {
	Verify(secret, code string) bool
}

// TwoFactorVerifierFunc adapts a function to TwoFactorVerifier.
type TwoFactorVerifierFunc func(secret, code string) bool

// Verify implements TwoFactorVerifier.
func (f TwoFactorVerifierFunc) Verify(secret, code string) bool {
	if f == nil {
		return false
	}
	return f(secret, code)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + formatKV(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + formatKV(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + formatKV(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + formatKV(msg, args...))
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

func formatKV(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteString(" ")
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, "%v", args[i])
		}
	}
	return b.String()
}
