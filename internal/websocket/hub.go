package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// ClientInterface is what the hub needs from a connection
type ClientInterface interface {
	ID() string
	UserID() string
	Wants(event Event) bool
	Send(data []byte) error
	Close() error
}

// Hub routes events to the open connections of each user. Safe for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[string]ClientInterface // user ID -> client ID -> client
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		users: make(map[string]map[string]ClientInterface),
	}
}

// Register adds a client under its user
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.UserID()
	if h.users[userID] == nil {
		h.users[userID] = make(map[string]ClientInterface)
	}
	h.users[userID][client.ID()] = client

	log.Debug().
		Str("user_id", userID).
		Str("client_id", client.ID()).
		Msg("WebSocket client registered")
}

// Unregister removes a client. Unknown clients are ignored.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.UserID()
	clients, ok := h.users[userID]
	if !ok {
		return
	}
	if _, exists := clients[client.ID()]; !exists {
		return
	}

	delete(clients, client.ID())
	if len(clients) == 0 {
		delete(h.users, userID)
	}

	log.Debug().
		Str("user_id", userID).
		Str("client_id", client.ID()).
		Msg("WebSocket client unregistered")
}

// recipients returns the user's clients subscribed to event
func (h *Hub) recipients(userID string, event Event) []ClientInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []ClientInterface
	for _, client := range h.users[userID] {
		if client.Wants(event) {
			matched = append(matched, client)
		}
	}
	return matched
}

// Broadcast sends event to every connection of userID subscribed to its entity.
// A client that cannot take the message is dropped.
func (h *Hub) Broadcast(userID string, event Event) {
	clients := h.recipients(userID, event)
	if len(clients) == 0 {
		return
	}

	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	for _, client := range clients {
		go func(c ClientInterface) {
			if err := c.Send(data); err != nil {
				log.Warn().
					Err(err).
					Str("user_id", userID).
					Str("client_id", c.ID()).
					Msg("Failed to send to client, dropping connection")
				h.Unregister(c)
				c.Close()
			}
		}(client)
	}

	log.Debug().
		Str("user_id", userID).
		Str("event_type", event.Type).
		Int("client_count", len(clients)).
		Msg("Broadcast event")
}

// ClientCount returns the number of connections open for a user
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// TotalClientCount returns the number of connections across all users
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.users {
		total += len(clients)
	}
	return total
}

// Shutdown closes every registered client and empties the hub
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var clients []ClientInterface
	for _, byID := range h.users {
		for _, client := range byID {
			clients = append(clients, client)
		}
	}
	h.users = make(map[string]map[string]ClientInterface)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	log.Info().Int("client_count", len(clients)).Msg("WebSocket hub shut down")
}
