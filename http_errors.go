package auth

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// APIError is the body of every rejected request.
type APIError struct {
	Status      int            `json:"status"`
	Error       string         `json:"error"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Path        string         `json:"path"`
	Timestamp   time.Time      `json:"timestamp"`
	FieldErrors []FieldError   `json:"fieldErrors,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FieldError is a single payload validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// publicMetadata lists metadata keys that are safe to return to callers.
var publicMetadata = []string{"rule", "required_roles", "user_role", "provider"}

// NewAPIError maps err to a status and body. Internal faults keep their
// details out of the body.
func NewAPIError(err error, path string) APIError {
	body := APIError{Path: path, Timestamp: time.Now().UTC()}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		body.Status = fe.Code
		body.Error = http.StatusText(fe.Code)
		body.Code = textCodeForStatus(fe.Code)
		body.Message = fe.Message
		if fe.Code >= http.StatusInternalServerError {
			body.Message = internalErrorMessage
		}
		return body
	}

	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich == nil || isInternal(rich) {
		body.Status = http.StatusInternalServerError
		body.Error = http.StatusText(body.Status)
		body.Code = TextCodeInternal
		body.Message = internalErrorMessage
		return body
	}

	body.Status = rich.Code
	if body.Status == 0 {
		body.Status = statusForCategory(rich.Category)
	}
	body.Error = http.StatusText(body.Status)
	body.Code = rich.TextCode
	if body.Code == "" {
		body.Code = textCodeForStatus(body.Status)
	}
	body.Message = rich.Message

	if fields, ok := rich.Metadata["fields"].(map[string]string); ok {
		body.FieldErrors = make([]FieldError, 0, len(fields))
		for field, msg := range fields {
			body.FieldErrors = append(body.FieldErrors, FieldError{Field: field, Message: msg})
		}
		sort.Slice(body.FieldErrors, func(i, j int) bool {
			return body.FieldErrors[i].Field < body.FieldErrors[j].Field
		})
	}

	for _, key := range publicMetadata {
		if v, ok := rich.Metadata[key]; ok {
			if body.Metadata == nil {
				body.Metadata = map[string]any{}
			}
			body.Metadata[key] = v
		}
	}

	return body
}

// ErrorHandler returns the fiber error handler used by the service.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		body := NewAPIError(err, c.Path())

		if body.Status >= http.StatusInternalServerError {
			var rich *goerrors.Error
			details := any(nil)
			if errors.As(err, &rich) && rich != nil {
				details = print.MaybePrettyJSON(rich.Metadata)
			}
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", err,
				"details", details,
			)
		} else {
			logger.Debug("request rejected",
				"method", c.Method(),
				"path", c.Path(),
				"status", body.Status,
				"code", body.Code,
			)
		}

		return c.Status(body.Status).JSON(body)
	}
}

func isInternal(rich *goerrors.Error) bool {
	return rich.Category == goerrors.CategoryInternal || rich.Code >= http.StatusInternalServerError
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func textCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TextCodeInvalidRequest
	case http.StatusUnauthorized:
		return TextCodeAuthenticationRequired
	case http.StatusForbidden:
		return TextCodeInsufficientPrivileges
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return TextCodeTooManyRequests
	}
	if status >= http.StatusInternalServerError {
		return TextCodeInternal
	}
	return "error"
}
