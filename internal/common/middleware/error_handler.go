package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lascaux-backend/internal/common/errors"
	"lascaux-backend/internal/common/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID reuses the caller's X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Recovery turns panics into a rendered 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Str("stack", string(debug.Stack())).
			Msg("Panic recovered")

		appErr := errors.New(errors.ErrCodeInternal, "Internal server error").
			WithDetail("panic", fmt.Sprintf("%v", recovered))
		render(c, appErr)
	})
}

// ErrorHandler renders the last error pushed with c.Error once the chain
// finishes, unless a response was already written.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := errors.AsAppError(err)
		if !ok {
			appErr = errors.NewInternalError(err)
		}
		render(c, appErr)
	}
}

// Fail records err for ErrorHandler and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func render(c *gin.Context, appErr *errors.AppError) {
	appErr.WithRequestID(GetRequestID(c))
	logError(c, appErr)
	c.AbortWithStatusJSON(appErr.Status(), appErr)
}

func logError(c *gin.Context, appErr *errors.AppError) {
	var event *zerolog.Event
	msg := "Application error occurred"
	switch {
	case appErr.IsInternal():
		event, msg = logger.Error(), "Internal error occurred"
	case appErr.IsUnauthorized():
		event, msg = logger.Warn(), "Unauthorized access attempt"
	case appErr.IsValidation():
		event, msg = logger.Info(), "Validation error"
	case appErr.IsNotFound():
		event, msg = logger.Info(), "Resource not found"
	default:
		event = logger.Warn()
	}

	event = event.
		Str("request_id", appErr.RequestID).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("error_code", string(appErr.Code)).
		Str("error_message", appErr.Message)

	if identity := CurrentIdentity(c); !identity.IsAnonymous() {
		user, _ := identity.User()
		event = event.Str("user_id", user.ID.String())
	}
	if len(appErr.Details) > 0 {
		event = event.Interface("details", appErr.Details)
	}
	if len(appErr.Stack) > 0 {
		event = event.Strs("stack", appErr.Stack)
	}
	if appErr.Cause != nil {
		event = event.Err(appErr.Cause)
	}
	event.Msg(msg)
}
