// internal/pkg/response/response.go
package response

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"

	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

var production atomic.Bool

// SetProduction hides internal error text from responses when on.
func SetProduction(on bool) { production.Store(on) }

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort before writing so later handlers never run.
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
		if code >= http.StatusInternalServerError && production.Load() {
			response.Error = ""
		}
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// FromError maps a service error onto status code and message.
func FromError(c *gin.Context, err error) {
	var (
		validation *xerrors.ValidationError
		locked     *xerrors.AccountLockedError
		protected  *xerrors.SystemEntityProtectedError
	)

	switch {
	case errors.As(err, &validation):
		Error(c, http.StatusBadRequest, "validation failed", err, gin.H{"field": validation.Field})
	case errors.As(err, &locked):
		retry := int(math.Ceil(locked.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(retry))
		Error(c, http.StatusLocked, "account is temporarily locked", nil, gin.H{
			"locked_until":        locked.Until,
			"retry_after_seconds": retry,
		})
	case errors.As(err, &protected):
		Error(c, http.StatusForbidden, "system entity is protected", err, gin.H{"fields": protected.Fields})
	case errors.Is(err, xerrors.ErrInvalidCredentials):
		Error(c, http.StatusUnauthorized, "invalid email or password", nil)
	case errors.Is(err, xerrors.ErrTokenInvalid), errors.Is(err, xerrors.ErrTokenExpired), errors.Is(err, xerrors.ErrTokenStale):
		// The three reasons stay distinct in audit logs only.
		Error(c, http.StatusUnauthorized, "invalid or expired session", nil)
	case errors.Is(err, xerrors.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, "unauthorized", nil)
	case errors.Is(err, xerrors.ErrAccountInactive), errors.Is(err, xerrors.ErrAccountSuspended):
		Error(c, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, xerrors.ErrForbidden):
		Error(c, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, xerrors.ErrNotFound):
		Error(c, http.StatusNotFound, "resource not found", nil)
	case errors.Is(err, xerrors.ErrConflict), errors.Is(err, xerrors.ErrDuplicateEntry):
		Error(c, http.StatusConflict, "resource already exists", err)
	case errors.Is(err, xerrors.ErrInvalidInput), errors.Is(err, xerrors.ErrBadRequest):
		Error(c, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, xerrors.ErrStorageUnavailable):
		c.Header("Retry-After", "1")
		Error(c, http.StatusServiceUnavailable, "service temporarily unavailable", err)
	default:
		Error(c, http.StatusInternalServerError, "internal server error", err)
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}
