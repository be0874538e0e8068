//go:generate go run go.uber.org/mock/mockgen -source=notify.go -destination=../mocks/mock_notify.go -package=mocks

// Package notify fans events out to live websocket connections.
//
// Every connection joins the personal room of its user. Joining a chat additionally
// subscribes the connection to the chat room, which only carries typing indicators.
// Delivery is fire-and-forget: an event for a room nobody is in is dropped.
package notify

import (
	"context"

	"github.com/google/uuid"
)

type Notifier interface {
	Notify(room string, kind Kind, payload any)
	// Unsubscribe drops every connection of userID from room.
	Unsubscribe(userID uuid.UUID, room string)
}

// RoomAuthorizer decides whether a user may subscribe to a chat room.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, userID, chatID uuid.UUID) error
}

const (
	userRoomPrefix = "user:"
	chatRoomPrefix = "chat:"
)

func UserRoom(id uuid.UUID) string { return userRoomPrefix + id.String() }

func ChatRoom(id uuid.UUID) string { return chatRoomPrefix + id.String() }

// Event is the frame written to clients.
type Event struct {
	Event Kind `json:"event"`
	Data  any  `json:"data"`
}

// ErrorPayload is the data of a socketError event.
type ErrorPayload struct {
	Message string `json:"message"`
}
