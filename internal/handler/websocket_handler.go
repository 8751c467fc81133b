package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WSAuthenticator resolves a query-string token to the user it was issued to
type WSAuthenticator interface {
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// WebSocketHandler upgrades authenticated requests and hands the connection to the hub
type WebSocketHandler struct {
	hub           *websocket.Hub
	authenticator WSAuthenticator
	origins       map[string]struct{}
	anyOrigin     bool
	upgrader      ws.Upgrader
}

// NewWebSocketHandler accepts browser upgrades only from allowedOrigins. "*" allows every origin.
func NewWebSocketHandler(hub *websocket.Hub, authenticator WSAuthenticator, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:           hub,
		authenticator: authenticator,
		origins:       make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			h.anyOrigin = true
		}
		h.origins[origin] = struct{}{}
	}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin lets through clients that send no Origin (non-browser)
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrigin {
		return true
	}
	if _, ok := h.origins[origin]; ok {
		return true
	}
	log.Warn().Str("origin", origin).Msg("WebSocket origin not allowed")
	return false
}

// HandleWS godoc
// @Summary Live budget alerts
// @Description Upgrade to a WebSocket that streams the user's transaction, category and budget events.
// @Description Send {"action":"subscribe","entities":["budget"]} to narrow the stream.
// @Tags realtime
// @Param token query string true "Access token"
// @Param entities query string false "Comma-separated entity types to receive (transaction, category, budget). Default all."
// @Success 101 "Switching Protocols"
// @Failure 401 {object} ProblemDetails
// @Router /ws [get]
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return NewUnauthorizedError(c, "Missing token query parameter")
	}
	userID, err := h.authenticator.Authenticate(c.Request().Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket token rejected")
		return NewUnauthorizedError(c, "Invalid token")
	}

	// Upgrade writes its own error response
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("WebSocket upgrade failed")
		return nil
	}

	entities := websocket.ParseEntities(c.QueryParams()["entities"])
	client := websocket.NewClient(conn, userID, h.hub, entities...)
	h.hub.Register(client)

	log.Info().
		Str("user_id", userID).
		Str("client_id", client.ID()).
		Int("user_clients", h.hub.ClientCount(userID)).
		Int("entity_filters", len(entities)).
		Msg("WebSocket client connected")

	go client.WritePump()
	go client.ReadPump()
	return nil
}
