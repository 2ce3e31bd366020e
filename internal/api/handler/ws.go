package handler

import (
	"net/http"

	"chatmind/backend/internal/api/middleware"
	"chatmind/backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set an Authorization header on the upgrade request;
	// auth happens via the token query parameter instead of the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades GET /ws and attaches the connection to the event
// hub. The route sits behind RequireAuth, which also accepts ?token= for
// browser websocket clients.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure to the client.
		h.Log.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	client := hub.NewWebSocketClient(h.Hub, conn, userID.String(), h.Log)
	h.Hub.RegisterCh <- client
	client.Run()
}
