package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// pingPeriod must stay below pongWait
	pingPeriod = (pongWait * 9) / 10

	// inbound frames are small control messages
	maxMessageSize = 1024

	sendBufferSize = 256
)

// Client is one authenticated WebSocket connection of a user
type Client struct {
	id           string
	userID       string
	conn         *websocket.Conn
	hub          *Hub
	subscription *Subscription
	logger       zerolog.Logger

	send      chan []byte
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewClient creates a client for conn. With no entities it receives every event.
func NewClient(conn *websocket.Conn, userID string, hub *Hub, entities ...EntityType) *Client {
	id := uuid.New().String()
	return &Client{
		id:           id,
		userID:       userID,
		conn:         conn,
		hub:          hub,
		subscription: NewSubscription(entities...),
		logger:       log.With().Str("client_id", id).Str("user_id", userID).Logger(),
		send:         make(chan []byte, sendBufferSize),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() string {
	return c.id
}

// UserID returns the ID of the user the client authenticated as
func (c *Client) UserID() string {
	return c.userID
}

// Wants reports whether the client subscribed to the event's entity
func (c *Client) Wants(event Event) bool {
	return c.subscription.Matches(event)
}

// Send queues data for the write pump. A full buffer counts as a dead client.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientClosed
	}
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		closeErr = c.conn.Close()
	})
	return closeErr
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ReadPump reads subscription changes until the peer goes away. Run it in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !c.subscription.Apply(data) {
			c.logger.Debug().Int("size", len(data)).Msg("Ignoring unknown WebSocket message")
		}
	}
}

// WritePump writes queued events and keepalive pings. Run it in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn().Err(err).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
