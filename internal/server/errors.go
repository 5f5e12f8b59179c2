package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/authorization"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/contact"
	"github.com/smallbiznis/toolhub/internal/onboarding"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog gives the request logger the same type/code pair the
// client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_credentials",
			Message: "invalid email or password",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, onboarding.ErrNoSession):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrTokenExpired),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "session_expired",
			Message: authdomain.Classify(err).Notice,
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, chatdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, catalogdomain.ErrAlreadyApproved),
		errors.Is(err, onboarding.ErrInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, onboarding.ErrTermsRequired):
		return http.StatusConflict, errorPayload{
			Type:    "terms_required",
			Message: "please accept the terms to continue",
		}
	case errors.Is(err, onboarding.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "file_too_large",
			Message: "profile picture must be 5MB or smaller",
		}
	case errors.Is(err, onboarding.ErrUpload),
		errors.Is(err, onboarding.ErrVerificationFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    onboardingErrorType(err),
			Message: "we couldn't finish setting up your profile, please try again",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, realtime.ErrHubUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, authdomain.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrPasswordTooShort),
		errors.Is(err, profiledomain.ErrNicknameRequired),
		errors.Is(err, profiledomain.ErrInvalidUserID),
		errors.Is(err, onboarding.ErrNicknameRequired),
		errors.Is(err, onboarding.ErrUnsupportedFile),
		errors.Is(err, catalogdomain.ErrInvalidID),
		errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidCategory),
		errors.Is(err, catalogdomain.ErrInvalidURL),
		errors.Is(err, catalogdomain.ErrInvalidKind),
		errors.Is(err, catalogdomain.ErrEmptyQuery),
		errors.Is(err, chatdomain.ErrInvalidConversation),
		errors.Is(err, chatdomain.ErrEmptyContent),
		errors.Is(err, chatdomain.ErrContentTooLong),
		errors.Is(err, chatdomain.ErrInvalidRole),
		errors.Is(err, contact.ErrInvalidName),
		errors.Is(err, contact.ErrInvalidEmail),
		errors.Is(err, contact.ErrInvalidMessage):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, chatdomain.ErrConversationNotFound),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, authdomain.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, authdomain.ErrPasswordTooShort):
		return "password_too_short"
	case errors.Is(err, profiledomain.ErrNicknameRequired):
		return "nickname_required"
	case errors.Is(err, profiledomain.ErrInvalidUserID):
		return "invalid_user_id"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "password_too_short":
		return "password"
	case "nickname_required":
		return "nickname"
	case "unsupported_file_type":
		return "avatar"
	case "empty_content", "content_too_long":
		return "content"
	case "empty_query":
		return "q"
	case "invalid_list_kind":
		return "kind"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "password_too_short":
		return "password must be at least 6 characters"
	case "invalid_email":
		return "enter a valid email address"
	case "nickname_required":
		return "nickname is required"
	case "unsupported_file_type":
		return "profile picture must be a JPEG, PNG, GIF or WebP image"
	default:
		return "invalid value"
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, authdomain.ErrUserExists):
		return "an account with this email already exists"
	case errors.Is(err, onboarding.ErrInProgress):
		return "onboarding is already running"
	default:
		return "conflict"
	}
}

func onboardingErrorType(err error) string {
	if errors.Is(err, onboarding.ErrUpload) {
		return "upload_failed"
	}
	return "verification_failed"
}
