package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	wstypes "backoffice-iam/internal/domain/websocket"
)

// MessageHandler serves client events the hub does not answer itself.
type MessageHandler interface {
	SupportedEvents() []wstypes.EventType
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
}

// ErrEventClaimed is returned when a handler asks for an event that is
// built in or already served by another handler.
var ErrEventClaimed = errors.New("event already has a handler")

var builtinEvents = map[wstypes.EventType]bool{
	wstypes.EventTypePing:        true,
	wstypes.EventTypePong:        true,
	wstypes.EventTypeSubscribe:   true,
	wstypes.EventTypeUnsubscribe: true,
}

type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[wstypes.EventType]MessageHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[wstypes.EventType]MessageHandler)}
}

// register claims every event of h or none of them.
func (r *handlerRegistry) register(h MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := h.SupportedEvents()
	for _, ev := range events {
		if builtinEvents[ev] {
			return fmt.Errorf("%w: %s is built in", ErrEventClaimed, ev)
		}
		if _, taken := r.handlers[ev]; taken {
			return fmt.Errorf("%w: %s", ErrEventClaimed, ev)
		}
	}
	for _, ev := range events {
		r.handlers[ev] = h
	}
	return nil
}

func (r *handlerRegistry) lookup(ev wstypes.EventType) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[ev]
	return h, ok
}
