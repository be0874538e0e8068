package store

import (
	"context"
	"os"
	"testing"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/db"
	"nexus-chat/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

// TestPostgresStore runs the same suite against a real database when TEST_DB_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	database, err := db.NewDatabase(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.AutoMigrate())

	runStoreSuite(t, func(t *testing.T) Store { return NewPostgres(database.Conn) })
}

func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	newUser := func(t *testing.T, s Store, name string) entity.User {
		u := entity.User{ID: uuid.New(), Username: name + "-" + uuid.NewString()[:8], Email: uuid.NewString() + "@nexus.test", LastSeen: now}
		require.NoError(t, s.CreateUser(ctx, u, "hash"))
		return u
	}
	newGroup := func(t *testing.T, s Store, admin uuid.UUID, members ...uuid.UUID) entity.Chat {
		name := "group"
		chat := entity.Chat{
			ID: uuid.New(), ChatName: &name, IsGroupChat: true, GroupAdminID: &admin,
			CreatedAt: now, UpdatedAt: now,
			Participants: []entity.Participant{{UserID: admin, Role: entity.RoleAdmin, JoinedAt: now}},
		}
		for _, m := range members {
			chat.Participants = append(chat.Participants, entity.Participant{UserID: m, Role: entity.RoleMember, JoinedAt: now})
		}
		require.NoError(t, s.CreateChat(ctx, chat))
		return chat
	}

	t.Run("should keep join order and reject duplicate active participants", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c")
		chat := newGroup(t, s, a.ID, b.ID)

		req.NoError(s.AddParticipant(ctx, chat.ID, entity.Participant{UserID: c.ID, Role: entity.RoleMember, JoinedAt: now}, a.ID))
		err := s.AddParticipant(ctx, chat.ID, entity.Participant{UserID: c.ID, Role: entity.RoleMember, JoinedAt: now}, a.ID)
		req.ErrorIs(err, apperr.ErrAlreadyMember)

		got, err := s.FindChat(ctx, chat.ID)
		req.NoError(err)
		req.Equal([]uuid.UUID{a.ID, b.ID, c.ID}, got.ParticipantIDs())
	})

	t.Run("should re-add a participant who left at the end of the join order", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c")
		chat := newGroup(t, s, a.ID, b.ID, c.ID)

		active, err := s.RemoveParticipant(ctx, chat.ID, b.ID, now, &a.ID)
		req.NoError(err)
		req.Equal(2, active)
		_, err = s.RemoveParticipant(ctx, chat.ID, b.ID, now, nil)
		req.ErrorIs(err, apperr.ErrNotAMember)
		req.NoError(s.AddParticipant(ctx, chat.ID, entity.Participant{UserID: b.ID, Role: entity.RoleMember, JoinedAt: now}, a.ID))

		got, err := s.FindChat(ctx, chat.ID)
		req.NoError(err)
		req.Equal([]uuid.UUID{a.ID, c.ID, b.ID}, got.ParticipantIDs())
	})

	t.Run("should hand the group to the first remaining participant when the admin leaves", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c")
		chat := newGroup(t, s, a.ID, b.ID, c.ID)

		// When the admin leaves
		active, err := s.RemoveParticipant(ctx, chat.ID, a.ID, now, nil)

		// Then b, next in join order, holds the group
		req.NoError(err)
		req.Equal(2, active)
		got, err := s.FindChat(ctx, chat.ID)
		req.NoError(err)
		req.True(got.IsAdmin(b.ID))
		req.Equal(entity.RoleAdmin, got.ActiveParticipants()[0].Role)
		req.Equal(entity.RoleMember, got.ActiveParticipants()[1].Role)
	})

	t.Run("should not move the group when a member leaves", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c")
		chat := newGroup(t, s, a.ID, b.ID, c.ID)

		active, err := s.RemoveParticipant(ctx, chat.ID, b.ID, now, nil)

		req.NoError(err)
		req.Equal(2, active)
		got, err := s.FindChat(ctx, chat.ID)
		req.NoError(err)
		req.True(got.IsAdmin(a.ID))
	})

	t.Run("should report no active participants once the last one leaves", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b := newUser(t, s, "a"), newUser(t, s, "b")
		chat := newGroup(t, s, a.ID, b.ID)

		active, err := s.RemoveParticipant(ctx, chat.ID, b.ID, now, nil)
		req.NoError(err)
		req.Equal(1, active)
		active, err = s.RemoveParticipant(ctx, chat.ID, a.ID, now, nil)
		req.NoError(err)
		req.Zero(active)
	})

	t.Run("should reject membership writes from an admin who no longer holds the group", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c, d := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c"), newUser(t, s, "d")
		chat := newGroup(t, s, a.ID, b.ID, c.ID)
		// Given the group moved from a to b
		req.NoError(s.SetGroupAdmin(ctx, chat.ID, b.ID, a.ID))

		// When a still tries to add and remove
		err := s.AddParticipant(ctx, chat.ID, entity.Participant{UserID: d.ID, Role: entity.RoleMember, JoinedAt: now}, a.ID)
		req.ErrorIs(err, apperr.ErrStaleAdmin)
		_, err = s.RemoveParticipant(ctx, chat.ID, c.ID, now, &a.ID)
		req.ErrorIs(err, apperr.ErrStaleAdmin)

		// Then membership is untouched
		got, err := s.FindChat(ctx, chat.ID)
		req.NoError(err)
		req.Equal([]uuid.UUID{a.ID, b.ID, c.ID}, got.ParticipantIDs())

		// And the current admin goes through
		req.NoError(s.AddParticipant(ctx, chat.ID, entity.Participant{UserID: d.ID, Role: entity.RoleMember, JoinedAt: now}, b.ID))
		_, err = s.RemoveParticipant(ctx, chat.ID, c.ID, now, &b.ID)
		req.NoError(err)
	})

	t.Run("should compare-and-set the group admin", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c")
		chat := newGroup(t, s, a.ID, b.ID, c.ID)

		req.ErrorIs(s.SetGroupAdmin(ctx, chat.ID, c.ID, b.ID), apperr.ErrForbidden)
		req.NoError(s.SetGroupAdmin(ctx, chat.ID, c.ID, a.ID))

		got, err := s.FindChat(ctx, chat.ID)
		req.NoError(err)
		req.True(got.IsAdmin(c.ID))
	})

	t.Run("should find a one-on-one chat only for its exact pair", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a, b, c := newUser(t, s, "a"), newUser(t, s, "b"), newUser(t, s, "c")
		chat := entity.Chat{
			ID: uuid.New(), CreatedAt: now, UpdatedAt: now,
			Participants: []entity.Participant{
				{UserID: a.ID, Role: entity.RoleAdmin, JoinedAt: now},
				{UserID: b.ID, Role: entity.RoleMember, JoinedAt: now},
			},
		}
		req.NoError(s.CreateChat(ctx, chat))

		got, err := s.FindOneOnOne(ctx, b.ID, a.ID)
		req.NoError(err)
		req.Equal(chat.ID, got.ID)
		_, err = s.FindOneOnOne(ctx, a.ID, c.ID)
		req.ErrorIs(err, apperr.ErrChatNotFound)
	})

	t.Run("should page messages newest first and delete them by chat", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a := newUser(t, s, "a")
		chatID := uuid.New()
		for i := 0; i < 3; i++ {
			at := now.Add(time.Duration(i) * time.Second)
			msg := entity.Message{ID: uuid.New(), ChatID: chatID, SenderID: a.ID, Content: "m", CreatedAt: at, UpdatedAt: at}
			if i == 1 {
				msg.Attachments = []entity.Attachment{{URL: "u", ExternalID: "x"}}
			}
			req.NoError(s.CreateMessage(ctx, msg))
		}

		page, err := s.ListMessages(ctx, chatID, nil, 2)
		req.NoError(err)
		req.Len(page, 2)
		req.True(page[0].CreatedAt.After(page[1].CreatedAt))

		withFiles, err := s.ListMessagesWithAttachments(ctx, chatID)
		req.NoError(err)
		req.Len(withFiles, 1)
		req.Equal([]string{"x"}, withFiles[0].ExternalIDs())

		n, err := s.DeleteMessagesByChat(ctx, chatID)
		req.NoError(err)
		req.Equal(3, n)
		_, err = s.LatestMessage(ctx, chatID)
		req.ErrorIs(err, apperr.ErrMessageNotFound)
	})

	t.Run("should treat deleting a missing chat as success", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		req.NoError(s.DeleteChat(ctx, uuid.New()))
	})

	t.Run("should skip unknown ids in batch user lookups", func(t *testing.T) {
		req := require.New(t)
		s := open(t)
		a := newUser(t, s, "a")

		users, err := s.FindUsers(ctx, []uuid.UUID{a.ID, uuid.New()})
		req.NoError(err)
		req.Len(users, 1)
		req.Equal(a.Username, users[a.ID].Username)
	})
}
