package social

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/hr-auth"
)

const (
	TextCodeProviderNotFound  = "social_provider_not_found"
	TextCodeInvalidState      = "social_invalid_state"
	TextCodeStateExpired      = "social_state_expired"
	TextCodeIncompleteProfile = "social_incomplete_profile"
	TextCodeEmailNotVerified  = "social_email_not_verified"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = goerrors.New("social provider not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is missing, tampered or
// issued for another provider.
var ErrInvalidState = goerrors.New("invalid oauth state", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(goerrors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = goerrors.New("oauth state expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrIncompleteProfile is returned when the profile lacks an id or email.
var ErrIncompleteProfile = goerrors.New("provider profile is missing id or email", goerrors.CategoryBadInput).
	WithTextCode(TextCodeIncompleteProfile).
	WithCode(goerrors.CodeBadRequest)

// ErrEmailNotVerified is returned when verified emails are required and the
// provider reports the address as unverified.
var ErrEmailNotVerified = goerrors.New("provider email is not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeForbidden)

// Operations reported in failure metadata.
const (
	OperationLookup   = "lookup"
	OperationState    = "state"
	OperationExchange = "exchange"
	OperationUserInfo = "user_info"
	OperationEmails   = "emails"
	OperationProfile  = "profile"
	OperationResolve  = "resolve"
	OperationIssue    = "issue"
)

// ProviderError captures normalized provider response details.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := "provider"
	if e.Provider != "" && e.Operation != "" {
		scope = fmt.Sprintf("%s %s", e.Provider, e.Operation)
	} else if e.Provider != "" {
		scope = e.Provider
	} else if e.Operation != "" {
		scope = e.Operation
	}

	if e.Description != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}

	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	if e.Provider != "" {
		meta["provider"] = e.Provider
	}
	if e.Operation != "" {
		meta["operation"] = e.Operation
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}

	return meta
}

// authFailed folds any exchange failure into auth.ErrOAuth2AuthenticationFailed.
func authFailed(provider, operation string, err error) *goerrors.Error {
	meta := map[string]any{}
	if provider != "" {
		meta["provider"] = provider
	}
	if operation != "" {
		meta["operation"] = operation
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		for k, v := range perr.Metadata() {
			meta[k] = v
		}
	} else if err != nil {
		meta["error"] = err.Error()
	}

	var cause *goerrors.Error
	if goerrors.As(err, &cause) && cause.TextCode != "" {
		meta["cause"] = cause.TextCode
	}

	clone := auth.ErrOAuth2AuthenticationFailed.Clone()
	if clone == nil {
		clone = auth.ErrOAuth2AuthenticationFailed
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}

	return clone
}
