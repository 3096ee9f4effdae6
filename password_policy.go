package auth

import (
	"errors"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	PasswordMinLength = 6
	PasswordMaxLength = 100
)

// Password policy rule names, reported in the error metadata.
const (
	PasswordRuleBlank     = "blank"
	PasswordRuleTooShort  = "too_short"
	PasswordRuleTooLong   = "too_long"
	PasswordRuleDenyList  = "deny_list"
	PasswordRuleCharClass = "letter_and_digit"
)

var passwordDenyList = []string{"password", "123456", "qwerty", "admin", "user", "test"}

type passwordRule struct {
	name    string
	message string
	fails   func(string) bool
}

// rules run in this order and the first failure wins.
var passwordRules = []passwordRule{
	{
		name:    PasswordRuleBlank,
		message: "Password cannot be empty",
		fails:   func(p string) bool { return strings.TrimSpace(p) == "" },
	},
	{
		name:    PasswordRuleTooShort,
		message: "Password must be at least 6 characters long",
		fails:   func(p string) bool { return utf8.RuneCountInString(p) < PasswordMinLength },
	},
	{
		name:    PasswordRuleTooLong,
		message: "Password cannot exceed 100 characters",
		fails:   func(p string) bool { return utf8.RuneCountInString(p) > PasswordMaxLength },
	},
	{
		name:    PasswordRuleDenyList,
		message: "Password is too weak. Please choose a stronger password",
		fails: func(p string) bool {
			lower := strings.ToLower(p)
			for _, weak := range passwordDenyList {
				if lower == weak {
					return true
				}
			}
			return false
		},
	},
	{
		name:    PasswordRuleCharClass,
		message: "Password must contain at least one letter and one number",
		fails:   func(p string) bool { return !hasASCIILetter(p) || !hasASCIIDigit(p) },
	},
}

type passwordRuleError struct {
	rule    string
	message string
}

func (e passwordRuleError) Error() string {
	return e.message
}

func (r passwordRule) ozzo() validation.Rule {
	return validation.By(func(value interface{}) error {
		p, _ := value.(string)
		if r.fails(p) {
			return passwordRuleError{rule: r.name, message: r.message}
		}
		return nil
	})
}

// PasswordRules exposes the policy as ozzo rules so payload validators can
// embed it in a field rule set.
func PasswordRules() []validation.Rule {
	out := make([]validation.Rule, len(passwordRules))
	for i, r := range passwordRules {
		out[i] = r.ozzo()
	}
	return out
}

// ValidatePassword applies the password policy. It returns nil or an
// ErrPasswordPolicy clone whose message names the failing rule.
func ValidatePassword(password string) error {
	err := validation.Validate(password, PasswordRules()...)
	if err == nil {
		return nil
	}

	var ruleErr passwordRuleError
	if errors.As(err, &ruleErr) {
		return withMessage(ErrPasswordPolicy, ruleErr.message, map[string]any{
			"rule":  ruleErr.rule,
			"field": "password",
		})
	}

	return withMessage(ErrPasswordPolicy, err.Error(), map[string]any{"field": "password"})
}

func hasASCIILetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}

func hasASCIIDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}
