package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	appErrors "github.com/charlesng35/launchpad/pkg/errors"
)

// User-facing failures of the account and newsletter flows.
var (
	ErrAuthTokenInvalid = &appErrors.AppError{
		Code:       "AUTH_TOKEN_INVALID",
		Message:    "This link is invalid or has expired",
		StatusCode: http.StatusBadRequest,
	}

	ErrAuthTokenExpired = &appErrors.AppError{
		Code:       "AUTH_TOKEN_EXPIRED",
		Message:    "This link is invalid or has expired",
		Hint:       "Request a new link and try again",
		StatusCode: http.StatusGone,
	}

	ErrEmailTaken = &appErrors.AppError{
		Code:       "EMAIL_TAKEN",
		Message:    "An account with this email already exists",
		StatusCode: http.StatusConflict,
	}

	ErrEmailNotVerified = &appErrors.AppError{
		Code:       "EMAIL_NOT_VERIFIED",
		Message:    "Please confirm your email address before signing in",
		Hint:       "Check your inbox or request a new confirmation email",
		StatusCode: http.StatusForbidden,
	}

	ErrEmailDeliveryFailed = &appErrors.AppError{
		Code:       "EMAIL_DELIVERY_FAILED",
		Message:    "We could not send the email, please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrWeakPassword = &appErrors.AppError{
		Code:       "WEAK_PASSWORD",
		Message:    "Password must be at least 8 characters and contain a letter and a digit",
		StatusCode: http.StatusBadRequest,
	}

	ErrAlreadySubscribed = &appErrors.AppError{
		Code:       "ALREADY_SUBSCRIBED",
		Message:    "This email is already subscribed",
		StatusCode: http.StatusConflict,
	}
)

// tokenFailureError maps a failed verification to the error shown to users. Storage
// details never reach the caller.
func tokenFailureError(v *TokenVerification) *appErrors.AppError {
	if v != nil && v.Failure == TokenExpired {
		return ErrAuthTokenExpired.WithInternal(v.Err)
	}
	var internal error
	if v != nil {
		internal = v.Err
	}
	return ErrAuthTokenInvalid.WithInternal(internal)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
