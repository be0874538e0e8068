package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	joinTimeout    = 5 * time.Second
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	auth   RoomAuthorizer
	// rooms is owned by the hub loop.
	rooms []string
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, auth RoomAuthorizer) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.clientBuffer),
		userID: userID,
		auth:   auth,
	}
}

// inbound is a frame sent by the browser.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.hub.refresh(c.userID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("Websocket closed unexpectedly", "user_id", c.userID, "error", err)
			}
			break
		}
		c.handle(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle dispatches one inbound frame. Anything unexpected is answered with a
// socketError to this client only.
func (c *Client) handle(message []byte) {
	var in inbound
	if err := json.Unmarshal(message, &in); err != nil {
		c.fail("malformed frame")
		return
	}
	kind, err := ParseKind(in.Event)
	if err != nil || !kind.ClientOriginated() {
		c.fail("unknown event " + in.Event)
		return
	}
	var chatID uuid.UUID
	if err := json.Unmarshal(in.Data, &chatID); err != nil {
		c.fail("data must be a chat id")
		return
	}

	switch kind {
	case JoinChat:
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()
		if err := c.auth.CanJoin(ctx, c.userID, chatID); err != nil {
			c.fail("cannot join chat " + chatID.String())
			return
		}
		c.hub.subscribeTo(c, ChatRoom(chatID))
	case Typing, StopTyping:
		frame, err := encode(kind, chatID)
		if err != nil {
			return
		}
		c.hub.enqueue(envelope{room: ChatRoom(chatID), frame: frame, except: c, member: true})
	}
}

func (c *Client) fail(msg string) {
	frame, err := encode(SocketError, ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	c.hub.enqueue(envelope{to: c, frame: frame})
}
