package notify

import (
	"log/slog"
	"net/http"

	myMiddleware "nexus-chat/internal/middleware"
	"nexus-chat/internal/respond"

	"github.com/gorilla/websocket"
)

// Gateway upgrades authenticated requests into hub clients.
type Gateway struct {
	hub      *Hub
	auth     RoomAuthorizer
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewGateway(hub *Hub, auth RoomAuthorizer, log *slog.Logger) *Gateway {
	return &Gateway{
		hub:  hub,
		auth: auth,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers on other origins authenticate with the token query parameter.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := newClient(g.hub, conn, userID, g.auth)
	g.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
