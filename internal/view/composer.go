// Package view builds the client-facing ChatView from stored entities.
//
// A view is composed by plain lookups: one batch fetch for the participants, one point
// fetch for the latest message and one for its sender. Dangling references never fail a
// composition; they resolve to nil.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Source is the subset of the entity store the composer reads from.
type Source interface {
	FindChat(ctx context.Context, id uuid.UUID) (entity.Chat, error)
	FindOneOnOne(ctx context.Context, a, b uuid.UUID) (entity.Chat, error)
	FindMessage(ctx context.Context, id uuid.UUID) (entity.Message, error)
	FindUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]entity.User, error)
}

// Presence overlays live online status. Optional.
type Presence interface {
	Statuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type Composer struct {
	src      Source
	presence Presence
	log      *slog.Logger
}

func NewComposer(src Source, presence Presence, log *slog.Logger) *Composer {
	return &Composer{src: src, presence: presence, log: log}
}

// ByID composes the view of a chat, or returns apperr.ErrChatNotFound.
func (c *Composer) ByID(ctx context.Context, chatID uuid.UUID) (*entity.ChatView, error) {
	chat, err := c.src.FindChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return c.Compose(ctx, chat)
}

// OneOnOne composes the one-on-one chat between exactly a and b.
func (c *Composer) OneOnOne(ctx context.Context, a, b uuid.UUID) (*entity.ChatView, error) {
	chat, err := c.src.FindOneOnOne(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return c.Compose(ctx, chat)
}

// Compose resolves an already loaded chat.
func (c *Composer) Compose(ctx context.Context, chat entity.Chat) (*entity.ChatView, error) {
	active := chat.ActiveParticipants()
	ids := lo.Map(active, func(p entity.Participant, _ int) uuid.UUID { return p.UserID })

	var latest *entity.Message
	if chat.LatestMessageID != nil {
		msg, err := c.src.FindMessage(ctx, *chat.LatestMessageID)
		switch {
		case err == nil:
			latest = &msg
			ids = append(ids, msg.SenderID)
		case errors.Is(err, apperr.ErrMessageNotFound):
			c.log.Debug("Latest message is dangling", "chat_id", chat.ID, "message_id", *chat.LatestMessageID)
		default:
			return nil, fmt.Errorf("load latest message: %w", err)
		}
	}

	users, err := c.src.FindUsers(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	c.overlay(ctx, users)

	v := &entity.ChatView{
		ID:           chat.ID,
		ChatName:     chat.ChatName,
		IsGroupChat:  chat.IsGroupChat,
		GroupAdminID: chat.GroupAdminID,
		CreatedAt:    chat.CreatedAt,
		UpdatedAt:    chat.UpdatedAt,
		Participants: make([]entity.ParticipantView, 0, len(active)),
	}
	for _, p := range active {
		v.Participants = append(v.Participants, entity.ParticipantView{
			UserID:   p.UserID,
			Role:     p.Role,
			JoinedAt: p.JoinedAt,
			User:     profileOf(users, p.UserID),
		})
	}
	if latest != nil {
		v.LatestMessage = &entity.MessageView{Message: *latest, Sender: profileOf(users, latest.SenderID)}
	}
	return v, nil
}

// ComposeMany builds views for a chat list. A chat that fails to compose is skipped and logged.
func (c *Composer) ComposeMany(ctx context.Context, chats []entity.Chat) []entity.ChatView {
	out := make([]entity.ChatView, 0, len(chats))
	for _, chat := range chats {
		v, err := c.Compose(ctx, chat)
		if err != nil {
			c.log.Warn("Failed to compose chat view", "chat_id", chat.ID, "error", err)
			continue
		}
		out = append(out, *v)
	}
	return out
}

// Message resolves the sender of a single message.
func (c *Composer) Message(ctx context.Context, msg entity.Message) (*entity.MessageView, error) {
	views, err := c.Messages(ctx, []entity.Message{msg})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Messages resolves senders for a page of messages with one batch lookup.
func (c *Composer) Messages(ctx context.Context, msgs []entity.Message) ([]entity.MessageView, error) {
	senders := lo.Uniq(lo.Map(msgs, func(m entity.Message, _ int) uuid.UUID { return m.SenderID }))
	users, err := c.src.FindUsers(ctx, senders)
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}
	return lo.Map(msgs, func(m entity.Message, _ int) entity.MessageView {
		return entity.MessageView{Message: m, Sender: profileOf(users, m.SenderID)}
	}), nil
}

func (c *Composer) overlay(ctx context.Context, users map[uuid.UUID]entity.User) {
	if c.presence == nil || len(users) == 0 {
		return
	}
	statuses, err := c.presence.Statuses(ctx, lo.Keys(users))
	if err != nil {
		c.log.Debug("Presence overlay skipped", "error", err)
		return
	}
	if statuses == nil {
		return
	}
	for id, u := range users {
		u.IsOnline = statuses[id]
		users[id] = u
	}
}

func profileOf(users map[uuid.UUID]entity.User, id uuid.UUID) *entity.Profile {
	u, ok := users[id]
	if !ok {
		return nil
	}
	return u.Profile()
}
