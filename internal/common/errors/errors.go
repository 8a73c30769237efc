package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// ErrorCode identifies an error class in API responses and logs.
type ErrorCode string

const (
	// Generic
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"

	// Accounts
	ErrCodeDuplicateWallet      ErrorCode = "DUPLICATE_WALLET"
	ErrCodeDuplicateDisplayName ErrorCode = "DUPLICATE_DISPLAY_NAME"
	ErrCodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	ErrCodeAlreadyFollowing     ErrorCode = "ALREADY_FOLLOWING"
	ErrCodeNotFollowing         ErrorCode = "NOT_FOLLOWING"

	// Sessions
	ErrCodeInvalidRefreshToken ErrorCode = "INVALID_REFRESH_TOKEN"
	ErrCodeExpiredRefreshToken ErrorCode = "EXPIRED_REFRESH_TOKEN"
	ErrCodeStoredTokenNotFound ErrorCode = "STORED_TOKEN_NOT_FOUND"
	ErrCodeRefreshUserNotFound ErrorCode = "REFRESH_USER_NOT_FOUND"
	ErrCodeInvalidAccessToken  ErrorCode = "INVALID_ACCESS_TOKEN"
	ErrCodeNotAuthenticated    ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeTokenNotFound       ErrorCode = "TOKEN_NOT_FOUND"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"

	// Storage
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

// AppError is a typed application error. Only Code, Message and RequestID
// are ever rendered to clients.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"detail"`
	Details   map[string]interface{} `json:"-"`
	Stack     []string               `json:"-"`
	Timestamp time.Time              `json:"-"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Status maps the error code to an HTTP status.
func (e *AppError) Status() int {
	switch e.Code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeDuplicateWallet, ErrCodeDuplicateDisplayName,
		ErrCodeTokenNotFound, ErrCodeNotFollowing:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidRefreshToken, ErrCodeExpiredRefreshToken, ErrCodeStoredTokenNotFound,
		ErrCodeRefreshUserNotFound, ErrCodeInvalidAccessToken, ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeAlreadyFollowing:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (e *AppError) IsInternal() bool {
	return e.Status() >= http.StatusInternalServerError
}

func (e *AppError) IsUnauthorized() bool {
	s := e.Status()
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

func (e *AppError) IsNotFound() bool {
	return e.Status() == http.StatusNotFound
}

func (e *AppError) IsValidation() bool {
	return e.Status() == http.StatusBadRequest
}

// WithDetail attaches a diagnostic value that is logged but not rendered.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithStack records the caller stack for logging.
func (e *AppError) WithStack() *AppError {
	e.Stack = getStackTrace()
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 {
			break
		}
	}
	return stack
}

func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field)
}

func NewNotAuthenticatedError() *AppError {
	return New(ErrCodeNotAuthenticated, "Not authenticated")
}

func NewInvalidAccessTokenError(reason string) *AppError {
	return New(ErrCodeInvalidAccessToken, reason)
}

func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeForbidden, reason)
}

func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "Internal server error").
		WithDetail("operation", operation).
		WithStack()
}

func NewInternalError(err error) *AppError {
	return Wrap(err, ErrCodeInternal, "Internal server error").WithStack()
}

// AsAppError unwraps err to an *AppError if it is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
