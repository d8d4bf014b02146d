/*
Package chat contains the core of the server: the per-connection protocol
state machine, the live-handler registry, and the broadcast fan-out.

This file defines the Broadcaster: the registry of live handlers and the
room-scoped fan-out. Delivery is per recipient; a slow or dead recipient
is cut loose without blocking or failing the others.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/randx"
)

// Broadcaster tracks every live handler and fans room messages out to the
// ones currently in the target room.
type Broadcaster struct {
	// mu protects handlers. It is held only for the snapshot, never
	// across a send.
	mu       sync.Mutex
	handlers map[*Handler]struct{}

	logger zerolog.Logger
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		handlers: make(map[*Handler]struct{}),
		logger:   logx.Logger().With().Str("component", "Broadcaster").Logger(),
	}
}

// Register adds a live handler to the fan-out set.
func (b *Broadcaster) Register(h *Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[h] = struct{}{}
}

// Unregister removes a handler from the fan-out set.
func (b *Broadcaster) Unregister(h *Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, h)
}

// Broadcast delivers lines to every handler currently in roomName, except
// the one bound to excludeUser (empty means deliver to all members). Each
// recipient either receives every line or is disconnected; no recipient
// sees a partial message.
func (b *Broadcaster) Broadcast(roomName, excludeUser string, lines ...string) {
	b.mu.Lock()
	targets := make([]*Handler, 0, len(b.handlers))
	for h := range b.handlers {
		targets = append(targets, h)
	}
	b.mu.Unlock()

	b.logger.Debug().
		Str("message_id", randx.MessageID()).
		Str("room", roomName).
		Int("lines", len(lines)).
		Msg("Broadcasting message.")

	for _, h := range targets {
		if !h.occupies(roomName) {
			continue
		}
		if excludeUser != "" && h.BoundUsername() == excludeUser {
			continue
		}
		if !h.trySend(lines...) {
			b.logger.Warn().
				Str("room", roomName).
				Str("username", h.BoundUsername()).
				Msg("Recipient outbound queue full. Dropping connection.")
			h.forceClose()
		}
	}
}

// LiveCount reports the number of registered handlers.
func (b *Broadcaster) LiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.handlers)
}
