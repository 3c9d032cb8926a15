package ws

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/metrics"
)

// Hub tracks every open connection. Room fan-out lives in the room
// registry; the hub only knows who is connected so it can count and close
// them.
type Hub struct {
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	stopped chan struct{}

	logger zerolog.Logger
	mu     sync.RWMutex
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// Run serves register and unregister requests until ctx is done, then
// closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			metrics.ActiveConnections.Set(float64(clientCount))
			h.logger.Debug().Str("client", client.clientID).Int("total", clientCount).Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			clientCount := len(h.clients)
			h.mu.Unlock()

			metrics.ActiveConnections.Set(float64(clientCount))
			h.logger.Debug().Str("client", client.clientID).Int("remaining", clientCount).Msg("client disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()

			metrics.ActiveConnections.Set(0)
			h.logger.Info().Msg("hub stopped")
			return
		}
	}
}

// Register blocks until the hub accepts c. It fails once the hub stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
