// internal/handlers/websocket/websocket.go
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"backoffice-iam/internal/middleware"
	"backoffice-iam/internal/pkg/response"
	ws "backoffice-iam/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts upgrades from the given origins. Requests
// without an Origin header are not browsers and pass.
func NewWebSocketHandler(hub *ws.Hub, origins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origins, origin)
			},
		},
		logger: logger,
	}
}

// HandleConnection authenticates the token, then upgrades the connection
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := h.extractToken(c)
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "missing authentication token", nil)
		return
	}

	auth, err := h.hub.AuthenticateClient(c.Request.Context(), token)
	if err != nil {
		h.logger.Info("websocket authentication failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		if errors.Is(err, ws.ErrUnauthorized) {
			response.Error(c, http.StatusUnauthorized, "authentication failed", nil)
			return
		}
		response.FromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	if err := h.hub.Join(client); err != nil {
		client.Close()
		return
	}

	h.logger.Info("websocket client connected",
		zap.String("admin_id", auth.AdminID),
		zap.String("session_id", auth.SessionID),
		zap.String("role", auth.RoleName),
	)

	go client.WritePump()
	go client.ReadPump()
}

// extractToken reads the token from the query string, where browsers put
// it, or from the Authorization header.
func (h *WebSocketHandler) extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// GetStats reports connection counts.
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	response.Success(c, http.StatusOK, "websocket stats", gin.H{
		"total_connections": h.hub.TotalClients(),
		"timestamp":         time.Now().UTC(),
	})
}
