package handlers

import (
	"context"
	"fmt"

	"backoffice-iam/internal/domain/token"
	wstypes "backoffice-iam/internal/domain/websocket"
	ws "backoffice-iam/internal/websocket"
)

// SessionLister returns the live refresh tokens of an admin.
type SessionLister interface {
	ListActive(ctx context.Context, adminID string) ([]*token.RefreshToken, error)
}

type SessionHandler struct {
	sessions SessionLister
}

func NewSessionHandler(sessions SessionLister) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SupportedEvents returns events this handler supports
func (h *SessionHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeSessionList}
}

// HandleMessage answers session:list with the caller's own live sessions.
func (h *SessionHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeSessionList:
		tokens, err := h.sessions.ListActive(ctx, client.AdminID())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		out := make([]wstypes.SessionInfo, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, wstypes.SessionInfo{
				ID:         t.ID,
				IP:         t.IP,
				UserAgent:  t.UserAgent,
				IssuedAt:   t.IssuedAt,
				ExpiresAt:  t.ExpiresAt,
				LastUsedAt: t.LastUsedAt,
			})
		}
		client.SendMessage(wstypes.NewMessage(wstypes.EventTypeSessionList, map[string]any{
			"sessions": out,
			"count":    len(out),
		}))
		return nil
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}
