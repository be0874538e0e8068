// Package store persists users, chats (with embedded participants) and messages.
//
// Lookups report absent records with the apperr NotFound errors. Membership writes are
// guarded: AddParticipant fails with apperr.ErrAlreadyMember when the user is already active,
// RemoveParticipant fails with apperr.ErrNotAMember when they are not, and SetGroupAdmin is a
// compare-and-set on the current admin. Writes that carry an expected admin fail with
// apperr.ErrStaleAdmin once someone else holds the group. DeleteChat is idempotent.
package store

import (
	"context"
	"time"

	"nexus-chat/internal/entity"

	"github.com/google/uuid"
)

type ChatStore interface {
	FindChat(ctx context.Context, id uuid.UUID) (entity.Chat, error)
	FindOneOnOne(ctx context.Context, a, b uuid.UUID) (entity.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]entity.Chat, error)
	CreateChat(ctx context.Context, chat entity.Chat) error
	SetChatName(ctx context.Context, id uuid.UUID, name string) error
	AddParticipant(ctx context.Context, id uuid.UUID, p entity.Participant, expectedAdmin uuid.UUID) error
	// RemoveParticipant marks the user as left and returns how many participants are still
	// active. When the leaver held the group, the first remaining participant in join order
	// is promoted in the same write. A nil expectedAdmin skips the admin check.
	RemoveParticipant(ctx context.Context, id, userID uuid.UUID, at time.Time, expectedAdmin *uuid.UUID) (int, error)
	SetGroupAdmin(ctx context.Context, id, newAdmin, expectedAdmin uuid.UUID) error
	SetLatestMessage(ctx context.Context, id uuid.UUID, messageID *uuid.UUID) error
	DeleteChat(ctx context.Context, id uuid.UUID) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m entity.Message) error
	FindMessage(ctx context.Context, id uuid.UUID) (entity.Message, error)
	// ListMessages returns a page, newest first, of messages created strictly before `before` when set.
	ListMessages(ctx context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]entity.Message, error)
	ListMessagesWithAttachments(ctx context.Context, chatID uuid.UUID) ([]entity.Message, error)
	// LatestMessage is the newest message of the chat that is not deleted.
	LatestMessage(ctx context.Context, chatID uuid.UUID) (entity.Message, error)
	MarkMessageDeleted(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteMessagesByChat(ctx context.Context, chatID uuid.UUID) (int, error)
}

type UserDirectory interface {
	FindUser(ctx context.Context, id uuid.UUID) (entity.User, error)
	// FindUsers silently skips ids that do not exist.
	FindUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]entity.User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (entity.User, error)
	SetPresence(ctx context.Context, id uuid.UUID, online bool, at time.Time) error
}

// Credentials is the identity-side view of the users table.
type Credentials interface {
	CreateUser(ctx context.Context, u entity.User, passwordHash string) error
	FindCredentials(ctx context.Context, identifier string) (entity.User, string, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]entity.User, error)
}

type Store interface {
	ChatStore
	MessageStore
	UserDirectory
	Credentials
}
