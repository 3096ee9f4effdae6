package auth

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// RegisterRequest is the registration and create-admin payload.
type RegisterRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Phone    string `json:"phone" form:"phone"`
	Password string `json:"password" form:"password"`
}

// Validate checks the identity fields. The password is checked separately
// by ValidatePassword so its failures keep their own error kind.
func (r RegisterRequest) Validate() error {
	return toRequestError(validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Phone, validation.By(validPhone)),
	), "Validation failed")
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Code     string `json:"code,omitempty" form:"code"`
}

// Validate checks the payload shape.
func (r LoginRequest) Validate() error {
	return toRequestError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	), "Validation failed")
}

// ChangePasswordRequest changes the password of the calling user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Validate checks the payload shape.
func (r ChangePasswordRequest) Validate() error {
	return toRequestError(validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
	), "Validation failed")
}

// AuthResponse is returned by every successful login.
type AuthResponse struct {
	Token   string `json:"token"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Role    Role   `json:"role,omitempty"`
	Message string `json:"message"`
}

// DefaultPhoneRegion is used to parse numbers without a country prefix.
var DefaultPhoneRegion = "US"

// NormalizePhone parses phone and formats it as E.164. Empty input is
// returned unchanged.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validPhone(value interface{}) error {
	s, _ := value.(string)
	if _, err := NormalizePhone(s); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// toRequestError turns ozzo field errors into an ErrInvalidRequest clone
// with a "fields" metadata entry.
func toRequestError(err error, msg string) error {
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	} else {
		fields["_"] = err.Error()
	}

	rich := withMessage(ErrInvalidRequest, msg, map[string]any{"fields": fields})
	rich.Source = err
	rich.Code = http.StatusUnprocessableEntity
	return rich
}
