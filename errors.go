package auth

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed          = "token_malformed"
	TextCodeTokenExpired            = "token_expired"
	TextCodeAuthenticationRequired  = "authentication_required"
	TextCodeInsufficientPrivileges  = "insufficient_privileges"
	TextCodeUserNotFound            = "user_not_found"
	TextCodeInvalidPassword         = "invalid_password"
	TextCodePasswordPolicy          = "password_policy_violation"
	TextCodeEmailAlreadyRegistered  = "email_already_registered"
	TextCodeAdminExists             = "admin_already_exists"
	TextCodeOAuth2Failed            = "oauth2_authentication_failed"
	TextCodeInvalidRequest          = "invalid_request"
	TextCodeTwoFactorRequired       = "two_factor_required"
	TextCodeInvalidTwoFactorCode    = "invalid_two_factor_code"
	TextCodeTooManyRequests         = "too_many_requests"
	TextCodeInternal                = "internal_error"
	internalErrorMessage            = "An unexpected error occurred"
	insufficientPrivilegesMessage   = "Insufficient privileges"
	authenticationRequiredMessage   = "Authentication required"
	defaultOAuth2FailedErrorMessage = "OAuth2 authentication failed"
)

// ErrTokenMalformed is returned when a token cannot be parsed or its
// signature does not verify.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its expiry.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthenticationRequired is returned when an operation needs an identity
// and none is attached to the request.
var ErrAuthenticationRequired = goerrors.New(authenticationRequiredMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInsufficientPrivileges is returned when the caller role is not part of
// the required set.
var ErrInsufficientPrivileges = goerrors.New(insufficientPrivilegesMessage, goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientPrivileges).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound is the invalid credentials variant for an unknown email.
var ErrUserNotFound = goerrors.New("User not found with the provided email address", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidPassword is the invalid credentials variant for a password
// mismatch.
var ErrInvalidPassword = goerrors.New("Invalid password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrPasswordPolicy is the base error for password policy violations. The
// returned clones carry the failing rule message.
var ErrPasswordPolicy = goerrors.New("password policy violation", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordPolicy).
	WithCode(http.StatusUnprocessableEntity)

// ErrEmailAlreadyRegistered is returned on duplicate registration.
var ErrEmailAlreadyRegistered = goerrors.New("Email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailAlreadyRegistered).
	WithCode(goerrors.CodeConflict)

// ErrAdminExists is returned when creating the first admin twice.
var ErrAdminExists = goerrors.New("Admin user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeAdminExists).
	WithCode(goerrors.CodeConflict)

// ErrOAuth2AuthenticationFailed covers every failure of an external
// provider exchange.
var ErrOAuth2AuthenticationFailed = goerrors.New(defaultOAuth2FailedErrorMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeOAuth2Failed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRequest is returned for payloads that fail to parse or validate.
var ErrInvalidRequest = goerrors.New("invalid request payload", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

// ErrTwoFactorRequired is returned when the account has two factor enabled
// and no code was provided.
var ErrTwoFactorRequired = goerrors.New("Two factor code required", goerrors.CategoryAuth).
	WithTextCode(TextCodeTwoFactorRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidTwoFactorCode is returned when the provided code does not verify.
var ErrInvalidTwoFactorCode = goerrors.New("Invalid two factor code", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidTwoFactorCode).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyRequests is returned by the login limiter.
var ErrTooManyRequests = goerrors.New("Too many requests", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests).
	WithCode(http.StatusTooManyRequests)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password can't be an empty string")

// HasTextCode reports whether err carries a rich error with the given text
// code anywhere in its chain.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !errors.As(err, &rich) || rich == nil {
			return false
		}
		if rich.TextCode == code {
			return true
		}
		err = rich.Source
	}
	return false
}

// IsTokenExpired reports an expired token.
func IsTokenExpired(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsTokenMalformed reports a token that failed to parse or verify.
func IsTokenMalformed(err error) bool {
	return HasTextCode(err, TextCodeTokenMalformed)
}

// IsUserNotFound reports an unknown email.
func IsUserNotFound(err error) bool {
	return HasTextCode(err, TextCodeUserNotFound)
}

// IsInvalidCredentials reports either login credential failure.
func IsInvalidCredentials(err error) bool {
	return HasTextCode(err, TextCodeUserNotFound) || HasTextCode(err, TextCodeInvalidPassword)
}

// IsPasswordPolicy reports a password policy violation.
func IsPasswordPolicy(err error) bool {
	return HasTextCode(err, TextCodePasswordPolicy)
}

// IsEmailAlreadyRegistered reports a duplicate email.
func IsEmailAlreadyRegistered(err error) bool {
	return HasTextCode(err, TextCodeEmailAlreadyRegistered)
}

// IsOAuth2Failed reports a failed provider exchange.
func IsOAuth2Failed(err error) bool {
	return HasTextCode(err, TextCodeOAuth2Failed)
}

// IsInsufficientPrivileges reports an authorization failure.
func IsInsufficientPrivileges(err error) bool {
	return HasTextCode(err, TextCodeInsufficientPrivileges)
}

// IsAuthenticationRequired reports a missing identity.
func IsAuthenticationRequired(err error) bool {
	return HasTextCode(err, TextCodeAuthenticationRequired)
}

// withMessage clones base and replaces its user facing message.
func withMessage(base *goerrors.Error, msg string, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	clone.Message = msg
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// withSource clones base and records err as its cause.
func withSource(base *goerrors.Error, err error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	clone.Source = err
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// WrapInternal wraps an unexpected lower level fault.
func WrapInternal(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
}
