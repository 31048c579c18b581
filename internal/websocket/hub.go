// Package websocket pushes session and access events to connected back office
// consoles.
package websocket

import (
	"context"
	"errors"
	"sync"

	wstypes "backoffice-iam/internal/domain/websocket"
	"backoffice-iam/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrHubClosed    = errors.New("hub is not running")
)

// Authenticator turns the bearer token of an upgrade request into a client
// identity. The auth service supplies it.
type Authenticator func(ctx context.Context, token string) (*ClientAuth, error)

type Hub struct {
	// Registered clients by admin ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage
	done      chan struct{}
	stopOnce  sync.Once

	handlers *handlerRegistry

	authenticate Authenticator
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// BroadcastMessage addresses Message to AdminIDs, or to everyone when nil.
// An empty Channel reaches clients regardless of their subscriptions.
type BroadcastMessage struct {
	AdminIDs   []string
	SessionID  string
	Channel    wstypes.ChannelType
	Message    *wstypes.WSMessage
	Disconnect bool
}

func NewHub(authenticate Authenticator, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:      make(map[string]map[*Client]bool),
		Register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *BroadcastMessage, 256),
		done:         make(chan struct{}),
		handlers:     newHandlerRegistry(),
		authenticate: authenticate,
		metrics:      m,
		logger:       logger.Named("websocket"),
	}
}

// AuthenticateClient validates the access token of an upgrade request.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if h.authenticate == nil || token == "" {
		return nil, ErrUnauthorized
	}
	auth, err := h.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if auth == nil || auth.AdminID == "" {
		return nil, ErrUnauthorized
	}
	return auth, nil
}

// RegisterHandler routes the handler's events to it. It fails when any of
// them is already taken.
func (h *Hub) RegisterHandler(handler MessageHandler) error {
	return h.handlers.register(handler)
}

// HandleClientMessage processes a message from a client using registered handlers.
// It reports whether a registered handler took the message.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlers.lookup(msg.Type)
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

// Join hands a new client to the run loop. It fails once the hub stopped.
func (h *Hub) Join(client *Client) error {
	select {
	case h.Register <- client:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.adminID] == nil {
		h.clients[client.adminID] = make(map[*Client]bool)
	}
	h.clients[client.adminID][client] = true
	h.metrics.SocketConnected(1)

	h.logger.Info("client connected",
		zap.String("admin_id", client.adminID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()))

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]any{
		"admin_id":    client.adminID,
		"session_id":  client.sessionID,
		"role":        client.roleName,
		"permissions": client.permissions,
		"device":      client.device,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.adminID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()
			h.metrics.SocketConnected(-1)

			if len(clients) == 0 {
				delete(h.clients, client.adminID)
			}

			h.logger.Info("client disconnected",
				zap.String("admin_id", client.adminID),
				zap.String("session_id", client.sessionID),
				zap.Int("total", h.totalClients()))
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(client *Client) {
		if msg.SessionID != "" && client.sessionID != msg.SessionID {
			return
		}
		if msg.Channel != "" && !client.IsSubscribed(msg.Channel) {
			return
		}
		client.SendMessage(msg.Message)
		if msg.Disconnect {
			client.closeAfterFlush()
		}
	}

	if msg.AdminIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				deliver(client)
			}
		}
		return
	}
	for _, adminID := range msg.AdminIDs {
		for client := range h.clients[adminID] {
			deliver(client)
		}
	}
}

// publish queues msg without blocking the caller. Events are best effort.
func (h *Hub) publish(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full, dropping event", zap.String("type", string(msg.Message.Type)))
	}
}

func (h *Hub) GetConnectedClients(adminID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[adminID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// IsUserConnected checks if an admin has any active connections
func (h *Hub) IsUserConnected(adminID string) bool {
	return h.GetConnectedClients(adminID) > 0
}

// Public methods for broadcasting

// NotifyPermissionsChanged tells the given admins, or everyone when adminIDs
// is nil, to refresh their access token.
func (h *Hub) NotifyPermissionsChanged(adminIDs []string, reason string) {
	h.publish(&BroadcastMessage{
		AdminIDs: adminIDs,
		Channel:  wstypes.ChannelAccess,
		Message: wstypes.NewMessage(wstypes.EventTypePermissionsChanged, map[string]any{
			"reason": reason,
		}),
	})
}

func (h *Hub) NotifyRoleAssigned(adminID string, change wstypes.RoleChangeData) {
	h.publish(&BroadcastMessage{
		AdminIDs: []string{adminID},
		Message:  wstypes.NewMessage(wstypes.EventTypeRoleAssigned, change),
	})
}

// NotifyAccountLocked reaches every client subscribed to the security channel.
func (h *Hub) NotifyAccountLocked(data wstypes.SecurityEventData) {
	h.publish(&BroadcastMessage{
		Channel: wstypes.ChannelSecurity,
		Message: wstypes.NewMessage(wstypes.EventTypeAccountLocked, data),
	})
}

func (h *Hub) BroadcastSystemAlert(alert *wstypes.SystemAlertData) {
	h.publish(&BroadcastMessage{
		Channel: wstypes.ChannelSystem,
		Message: wstypes.NewMessage(wstypes.EventTypeSystemAlert, alert),
	})
}

// ForceLogout tells the admin's consoles to drop their session and closes
// them. An empty sessionID targets every connection of the admin.
func (h *Hub) ForceLogout(adminID, sessionID, reason string) {
	h.publish(&BroadcastMessage{
		AdminIDs:  []string{adminID},
		SessionID: sessionID,
		Message: wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
			SessionID: sessionID,
			Reason:    reason,
			Message:   "You have been logged out",
		}),
		Disconnect: true,
	})
}

// DisconnectUser forcefully disconnects all sessions for an admin
func (h *Hub) DisconnectUser(adminID string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[adminID]
	if !ok {
		return
	}
	disconnectMsg := wstypes.NewMessage(wstypes.EventTypeDisconnected, map[string]any{
		"reason": reason,
	})
	for client := range clients {
		client.SendMessage(disconnectMsg)
		client.closeAfterFlush()
	}
	h.logger.Info("disconnected all clients",
		zap.String("admin_id", adminID), zap.String("reason", reason))
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for adminID, clients := range h.clients {
		for client := range clients {
			client.Close()
			h.metrics.SocketConnected(-1)
		}
		delete(h.clients, adminID)
	}
}
