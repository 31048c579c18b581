// internal/middleware/recovery_middleware.go
package middleware

import (
	"io"
	"net/http"

	"backoffice-iam/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware answers a panicking request with a 500 envelope and logs
// the stack through zap. Broken client connections are aborted by gin
// without a response.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		adminID, _ := GetAdminID(c)
		logger.Error("panic recovered",
			zap.Any("error", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("admin_id", adminID),
			zap.Stack("stack"),
		)
		response.Error(c, http.StatusInternalServerError, "internal server error", nil)
	})
}
