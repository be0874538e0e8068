package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/blob"
	"nexus-chat/internal/cascade"
	"nexus-chat/internal/entity"
	"nexus-chat/internal/mocks"
	"nexus-chat/internal/notify"
	"nexus-chat/internal/store"
	"nexus-chat/internal/view"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sent struct {
	room    string
	kind    notify.Kind
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []sent
	// unsubscribed holds "user|room" pairs.
	unsubscribed []string
}

func (r *recorder) Unsubscribe(userID uuid.UUID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribed = append(r.unsubscribed, userID.String()+"|"+room)
}

func (r *recorder) evicted(userID, chatID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Contains(r.unsubscribed, userID.String()+"|"+notify.ChatRoom(chatID))
}

func (r *recorder) Notify(room string, kind notify.Kind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{room: room, kind: kind, payload: payload})
}

func (r *recorder) count(userID uuid.UUID, kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.room == notify.UserRoom(userID) && e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.unsubscribed = nil
}

func (r *recorder) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	svc    *Service
	deps   Dependencies
	store  *store.Memory
	blobs  *blob.Memory
	events *recorder
}

// interleavedStore runs a write of its own right before the first RemoveParticipant
// reaches the store, after the service has already read the chat.
type interleavedStore struct {
	*store.Memory
	once   sync.Once
	before func()
}

func (s *interleavedStore) RemoveParticipant(ctx context.Context, id, userID uuid.UUID, at time.Time, expectedAdmin *uuid.UUID) (int, error) {
	s.once.Do(s.before)
	return s.Memory.RemoveParticipant(ctx, id, userID, at, expectedAdmin)
}

// interleave rebuilds the service so that before runs between its read and its removal.
func (f *fixture) interleave(before func()) {
	deps := f.deps
	deps.Store = &interleavedStore{Memory: f.store, before: before}
	f.svc = NewService(deps)
}

func newFixture(t *testing.T, notifier notify.Notifier) *fixture {
	t.Helper()
	s := store.NewMemory()
	blobs := blob.NewMemory()
	events := &recorder{}
	if notifier == nil {
		notifier = events
	}
	log := slog.Default()
	deps := Dependencies{
		Store:    s,
		Views:    view.NewComposer(s, nil, log),
		Cascade:  cascade.NewCoordinator(s, blobs, log, 4),
		Blobs:    blobs,
		Notifier: notifier,
		Log:      log,
	}
	return &fixture{svc: NewService(deps), deps: deps, store: s, blobs: blobs, events: events}
}

func (f *fixture) user(name string) uuid.UUID {
	u := entity.User{ID: uuid.New(), Username: name, FullName: strings.ToUpper(name)}
	f.store.PutUser(u)
	return u.ID
}

// group creates a group administered by admin with the given members.
func (f *fixture) group(t *testing.T, admin uuid.UUID, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	v, err := f.svc.CreateGroup(context.Background(), admin, "team", members)
	require.NoError(t, err)
	f.events.reset()
	return v.ID
}

func (f *fixture) contents(t *testing.T, chatID uuid.UUID) []string {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), chatID, nil, 0)
	require.NoError(t, err)
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestService_CreateOrGetOneOnOne(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the same chat on repeated calls and notify only once", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		alice, bob := f.user("alice"), f.user("bob")

		// When
		first, err := f.svc.CreateOrGetOneOnOne(ctx, alice, bob)
		req.NoError(err)
		second, err := f.svc.CreateOrGetOneOnOne(ctx, alice, bob)
		req.NoError(err)
		reverse, err := f.svc.CreateOrGetOneOnOne(ctx, bob, alice)
		req.NoError(err)

		// Then
		req.Equal(first.ID, second.ID)
		req.Equal(first.ID, reverse.ID)
		req.Equal(1, f.events.count(bob, notify.NewChat))
		req.Zero(f.events.count(alice, notify.NewChat))
		req.Nil(first.GroupAdminID)
		req.Equal(entity.RoleAdmin, first.Participants[0].Role)
		req.Equal(entity.RoleMember, first.Participants[1].Role)
	})

	t.Run("should never create two chats under concurrent calls", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		alice, bob := f.user("alice"), f.user("bob")

		var wg sync.WaitGroup
		ids := make([]uuid.UUID, 8)
		for i := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := f.svc.CreateOrGetOneOnOne(ctx, alice, bob)
				if err == nil {
					ids[i] = v.ID
				}
			}()
		}
		wg.Wait()

		chats, err := f.store.ListChatsForUser(ctx, alice)
		req.NoError(err)
		req.Len(chats, 1)
		for _, id := range ids {
			req.Equal(chats[0].ID, id)
		}
	})

	t.Run("should reject self and unknown receivers as invalid targets", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		alice := f.user("alice")

		_, err := f.svc.CreateOrGetOneOnOne(ctx, alice, alice)
		req.ErrorIs(err, apperr.ErrInvalidTarget)
		_, err = f.svc.CreateOrGetOneOnOne(ctx, alice, uuid.New())
		req.ErrorIs(err, apperr.ErrInvalidTarget)
		req.Equal(apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestService_CreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("should deduplicate members", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		a, b, c := f.user("a"), f.user("b"), f.user("c")

		// When C creates a group with [A, A, B]
		v, err := f.svc.CreateGroup(ctx, c, "trio", []uuid.UUID{a, a, b})

		// Then
		req.NoError(err)
		req.Len(v.Participants, 3)
		req.Equal([]uuid.UUID{c, a, b}, v.ParticipantIDs())
		req.Equal(c, *v.GroupAdminID)
		req.Equal(1, f.events.count(a, notify.NewChat))
		req.Equal(1, f.events.count(b, notify.NewChat))
		req.Zero(f.events.count(c, notify.NewChat))
	})

	t.Run("should require two distinct members other than the caller", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		a, b, c := f.user("a"), f.user("b"), f.user("c")

		for _, members := range [][]uuid.UUID{{a}, {a, a}, {a, c}, {}} {
			_, err := f.svc.CreateGroup(ctx, c, "x", members)
			req.ErrorIs(err, apperr.ErrInvalidParticipants)
			req.Equal(apperr.KindInvalidInput, apperr.KindOf(err))
		}
		_, err := f.svc.CreateGroup(ctx, c, "x", []uuid.UUID{a, b})
		req.NoError(err)
	})

	t.Run("should fall back to the default name and reject unknown users", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		a, b, c := f.user("a"), f.user("b"), f.user("c")

		v, err := f.svc.CreateGroup(ctx, c, "  ", []uuid.UUID{a, b})
		req.NoError(err)
		req.Equal(DefaultGroupName, *v.ChatName)

		_, err = f.svc.CreateGroup(ctx, c, "x", []uuid.UUID{a, uuid.New()})
		req.ErrorIs(err, apperr.ErrUserNotFound)
	})
}

func TestService_Rename(t *testing.T) {
	ctx := context.Background()

	t.Run("should emit exactly one groupUpdated and one messageReceived per participant", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		f := newFixture(t, notifier)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")

		notifier.EXPECT().Notify(gomock.Any(), notify.NewChat, gomock.Any()).Times(2)
		chatID := f.group(t, admin, a, b)

		for _, id := range []uuid.UUID{admin, a, b} {
			notifier.EXPECT().Notify(notify.UserRoom(id), notify.GroupUpdated, gomock.Any()).Times(1)
			notifier.EXPECT().Notify(notify.UserRoom(id), notify.MessageReceived, gomock.Any()).Times(1)
		}

		// When a member renames the group
		v, err := f.svc.Rename(ctx, a, chatID, "  renamed ")

		// Then
		req.NoError(err)
		req.Equal("renamed", *v.ChatName)
		req.Equal(`changed the group subject from "team" to "renamed"`, v.LatestMessage.Content)
		req.Equal("a", v.LatestMessage.Sender.Username)
	})

	t.Run("should be a silent no-op when the name is unchanged", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)

		v, err := f.svc.Rename(ctx, admin, chatID, "team")

		req.NoError(err)
		req.Equal("team", *v.ChatName)
		req.Zero(f.events.size())
		req.Empty(f.contents(t, chatID))
	})

	t.Run("should validate the chat, name and caller", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b, outsider := f.user("admin"), f.user("a"), f.user("b"), f.user("outsider")
		chatID := f.group(t, admin, a, b)
		direct, err := f.svc.CreateOrGetOneOnOne(ctx, a, b)
		req.NoError(err)

		_, err = f.svc.Rename(ctx, admin, uuid.New(), "x")
		req.ErrorIs(err, apperr.ErrChatNotFound)
		_, err = f.svc.Rename(ctx, a, direct.ID, "x")
		req.ErrorIs(err, apperr.ErrNotAGroup)
		_, err = f.svc.Rename(ctx, admin, chatID, "   ")
		req.ErrorIs(err, apperr.ErrInvalidName)
		_, err = f.svc.Rename(ctx, outsider, chatID, "x")
		req.ErrorIs(err, apperr.ErrForbidden)
	})
}

func TestService_AddParticipant(t *testing.T) {
	ctx := context.Background()

	t.Run("should notify the new user, the existing members and everyone about the system message", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b, d := f.user("admin"), f.user("a"), f.user("b"), f.user("dora")
		chatID := f.group(t, admin, a, b)

		v, err := f.svc.AddParticipant(ctx, admin, chatID, d)

		req.NoError(err)
		req.Equal([]uuid.UUID{admin, a, b, d}, v.ParticipantIDs())
		req.Equal(1, f.events.count(d, notify.NewChat))
		req.Zero(f.events.count(d, notify.GroupUpdated))
		for _, id := range []uuid.UUID{admin, a, b} {
			req.Equal(1, f.events.count(id, notify.GroupUpdated))
			req.Zero(f.events.count(id, notify.NewChat))
		}
		for _, id := range []uuid.UUID{admin, a, b, d} {
			req.Equal(1, f.events.count(id, notify.MessageReceived))
		}
		req.Equal([]string{"added dora"}, f.contents(t, chatID))
	})

	t.Run("should reject non-admins, duplicates and unknown users", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b, d := f.user("admin"), f.user("a"), f.user("b"), f.user("d")
		chatID := f.group(t, admin, a, b)

		_, err := f.svc.AddParticipant(ctx, a, chatID, d)
		req.ErrorIs(err, apperr.ErrForbidden)
		_, err = f.svc.AddParticipant(ctx, admin, chatID, b)
		req.ErrorIs(err, apperr.ErrAlreadyMember)
		req.Equal(apperr.KindConflict, apperr.KindOf(err))
		_, err = f.svc.AddParticipant(ctx, admin, chatID, uuid.New())
		req.ErrorIs(err, apperr.ErrUserNotFound)
	})
}

func TestService_RemoveParticipant(t *testing.T) {
	ctx := context.Background()

	t.Run("should drop the participant and record a system message naming them", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, x := f.user("admin"), f.user("a"), f.user("xavier")
		chatID := f.group(t, admin, a, x)

		v, err := f.svc.RemoveParticipant(ctx, admin, chatID, x)

		req.NoError(err)
		req.False(v.HasParticipant(x))
		req.Contains(f.contents(t, chatID)[0], "xavier")
		req.Equal(1, f.events.count(x, notify.LeftChat))
		req.Zero(f.events.count(x, notify.MessageReceived))
		req.True(f.events.evicted(x, chatID))
		req.False(f.events.evicted(a, chatID))
		for _, id := range []uuid.UUID{admin, a} {
			req.Equal(1, f.events.count(id, notify.GroupUpdated))
			req.Equal(1, f.events.count(id, notify.MessageReceived))
		}
	})

	t.Run("should use the fallback identifier for unknown users", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		ghost := uuid.New()
		req.NoError(f.store.AddParticipant(ctx, chatID, entity.Participant{UserID: ghost, Role: entity.RoleMember}, admin))

		_, err := f.svc.RemoveParticipant(ctx, admin, chatID, ghost)

		req.NoError(err)
		req.Equal("removed a participant", f.contents(t, chatID)[0])
	})

	t.Run("should reject self removal, non-admins and non-members", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)

		_, err := f.svc.RemoveParticipant(ctx, admin, chatID, admin)
		req.ErrorIs(err, apperr.ErrCannotRemoveSelf)
		_, err = f.svc.RemoveParticipant(ctx, a, chatID, b)
		req.ErrorIs(err, apperr.ErrForbidden)
		_, err = f.svc.RemoveParticipant(ctx, admin, chatID, uuid.New())
		req.ErrorIs(err, apperr.ErrNotAMember)
	})

	t.Run("should refuse the removal when the group changed hands after the admin check", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		// Given the admin hands the group to a while the removal of b is in flight
		f.interleave(func() {
			req.NoError(f.store.SetGroupAdmin(ctx, chatID, a, admin))
		})

		// When
		_, err := f.svc.RemoveParticipant(ctx, admin, chatID, b)

		// Then
		req.ErrorIs(err, apperr.ErrStaleAdmin)
		chat, err := f.store.FindChat(ctx, chatID)
		req.NoError(err)
		req.True(chat.HasParticipant(b))
		req.Empty(f.contents(t, chatID))
		req.Zero(f.events.size())
	})
}

func TestService_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("should promote the next participant in join order when the admin leaves", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)

		req.NoError(f.svc.Leave(ctx, admin, chatID))

		chat, err := f.store.FindChat(ctx, chatID)
		req.NoError(err)
		req.True(chat.IsAdmin(a))
		req.Equal([]uuid.UUID{a, b}, chat.ParticipantIDs())
		req.Equal([]string{"left the group"}, f.contents(t, chatID))
		req.Zero(f.events.count(admin, notify.GroupUpdated))
		req.Equal(1, f.events.count(a, notify.GroupUpdated))
		req.Equal(1, f.events.count(b, notify.MessageReceived))
		req.True(f.events.evicted(admin, chatID))
	})

	t.Run("should keep an admin when the group was handed to the leaver in the meantime", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		// Given a read the chat as a plain member, then received the group before leaving
		f.interleave(func() {
			req.NoError(f.store.SetGroupAdmin(ctx, chatID, a, admin))
		})

		// When
		req.NoError(f.svc.Leave(ctx, a, chatID))

		// Then the first remaining participant holds the group
		chat, err := f.store.FindChat(ctx, chatID)
		req.NoError(err)
		req.Equal([]uuid.UUID{admin, b}, chat.ParticipantIDs())
		req.True(chat.IsAdmin(admin))
		req.Equal(entity.RoleAdmin, chat.ActiveParticipants()[0].Role)
	})

	t.Run("should promote whoever is first when the expected successor left meanwhile", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		f.interleave(func() {
			_, err := f.store.RemoveParticipant(ctx, chatID, a, time.Now(), nil)
			req.NoError(err)
		})

		req.NoError(f.svc.Leave(ctx, admin, chatID))

		chat, err := f.store.FindChat(ctx, chatID)
		req.NoError(err)
		req.Equal([]uuid.UUID{b}, chat.ParticipantIDs())
		req.True(chat.IsAdmin(b))
	})

	t.Run("should delete the chat when the others left between the read and the write", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		_, err := f.svc.RemoveParticipant(ctx, admin, chatID, b)
		req.NoError(err)
		f.events.reset()
		// Given a leaves concurrently with the admin
		f.interleave(func() {
			_, err := f.store.RemoveParticipant(ctx, chatID, a, time.Now(), nil)
			req.NoError(err)
		})

		// When
		req.NoError(f.svc.Leave(ctx, admin, chatID))

		// Then nobody is left, so the chat and its history are gone
		_, err = f.store.FindChat(ctx, chatID)
		req.ErrorIs(err, apperr.ErrChatNotFound)
		req.Empty(f.contents(t, chatID))
		req.Zero(f.events.size())
	})

	t.Run("should delete the chat and its messages when the last participant leaves", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		_, err := f.svc.RemoveParticipant(ctx, admin, chatID, a)
		req.NoError(err)
		_, err = f.svc.RemoveParticipant(ctx, admin, chatID, b)
		req.NoError(err)
		f.events.reset()

		req.NoError(f.svc.Leave(ctx, admin, chatID))

		_, err = f.store.FindChat(ctx, chatID)
		req.ErrorIs(err, apperr.ErrChatNotFound)
		req.Empty(f.contents(t, chatID))
		req.Zero(f.events.size())
	})

	t.Run("should reject non-members", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)

		req.ErrorIs(f.svc.Leave(ctx, uuid.New(), chatID), apperr.ErrNotAMember)
	})
}

func TestService_TransferAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject a non-admin caller and keep the admin", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)

		_, err := f.svc.TransferAdmin(ctx, a, chatID, b)

		req.ErrorIs(err, apperr.ErrForbidden)
		req.Equal(apperr.KindForbidden, apperr.KindOf(err))
		chat, err := f.store.FindChat(ctx, chatID)
		req.NoError(err)
		req.True(chat.IsAdmin(admin))
		req.Zero(f.events.size())
	})

	t.Run("should hand the group over", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("alma"), f.user("b")
		chatID := f.group(t, admin, a, b)

		v, err := f.svc.TransferAdmin(ctx, admin, chatID, a)

		req.NoError(err)
		req.Equal(a, *v.GroupAdminID)
		req.Equal(entity.RoleMember, v.Participants[0].Role)
		req.Equal(entity.RoleAdmin, v.Participants[1].Role)
		req.Equal("made alma the new admin", v.LatestMessage.Content)
		for _, id := range []uuid.UUID{admin, a, b} {
			req.Equal(1, f.events.count(id, notify.GroupUpdated))
		}
	})

	t.Run("should reject self transfer and non-members", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)

		_, err := f.svc.TransferAdmin(ctx, admin, chatID, admin)
		req.ErrorIs(err, apperr.ErrAlreadyAdmin)
		_, err = f.svc.TransferAdmin(ctx, admin, chatID, uuid.New())
		req.ErrorIs(err, apperr.ErrNotAMember)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("should cascade a group delete and tell the others with the previous view", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		f.blobs.FailOn("missing", errors.New("boom"))
		for _, id := range []string{"one", "two", "missing"} {
			f.blobs.Put(id, nil)
		}
		req.NoError(f.store.CreateMessage(ctx, entity.Message{ID: uuid.New(), ChatID: chatID, SenderID: a,
			Attachments: []entity.Attachment{{ExternalID: "one"}, {ExternalID: "two"}, {ExternalID: "missing"}}}))

		_, err := f.svc.RemoveParticipant(ctx, a, chatID, b)
		req.ErrorIs(err, apperr.ErrForbidden)
		req.ErrorIs(f.svc.DeleteGroup(ctx, a, chatID), apperr.ErrForbidden)
		req.NoError(f.svc.DeleteGroup(ctx, admin, chatID))

		_, err = f.store.FindChat(ctx, chatID)
		req.ErrorIs(err, apperr.ErrChatNotFound)
		req.Empty(f.contents(t, chatID))
		req.False(f.blobs.Has("one"))
		req.True(f.blobs.Has("missing"))
		req.Equal(1, f.events.count(a, notify.LeftChat))
		req.Equal(1, f.events.count(b, notify.LeftChat))
		req.Zero(f.events.count(admin, notify.LeftChat))
		for _, id := range []uuid.UUID{admin, a, b} {
			req.True(f.events.evicted(id, chatID))
		}
	})

	t.Run("should let either side delete a one-on-one chat", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		alice, bob := f.user("alice"), f.user("bob")
		v, err := f.svc.CreateOrGetOneOnOne(ctx, alice, bob)
		req.NoError(err)
		_, err = f.svc.SendMessage(ctx, alice, v.ID, "hello", nil)
		req.NoError(err)
		f.events.reset()

		req.ErrorIs(f.svc.DeleteOneOnOne(ctx, uuid.New(), v.ID), apperr.ErrForbidden)
		req.NoError(f.svc.DeleteOneOnOne(ctx, bob, v.ID))

		_, err = f.store.FindChat(ctx, v.ID)
		req.ErrorIs(err, apperr.ErrChatNotFound)
		req.Empty(f.contents(t, v.ID))
		req.Equal(1, f.events.count(alice, notify.LeftChat))
		req.Zero(f.events.count(bob, notify.LeftChat))
		req.True(f.events.evicted(alice, v.ID))
		req.True(f.events.evicted(bob, v.ID))
	})

	t.Run("should refuse the wrong delete path", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, nil)
		admin, a, b := f.user("admin"), f.user("a"), f.user("b")
		chatID := f.group(t, admin, a, b)
		direct, err := f.svc.CreateOrGetOneOnOne(ctx, a, b)
		req.NoError(err)

		req.ErrorIs(f.svc.DeleteOneOnOne(ctx, admin, chatID), apperr.ErrNotOneOnOne)
		req.ErrorIs(f.svc.DeleteGroup(ctx, a, direct.ID), apperr.ErrNotAGroup)
	})
}

func TestService_Invariants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)
	admin, a, b, c := f.user("admin"), f.user("a"), f.user("b"), f.user("c")
	chatID := f.group(t, admin, a, b)

	// A mix of membership changes, including re-adding a removed user
	_, err := f.svc.AddParticipant(ctx, admin, chatID, c)
	req.NoError(err)
	_, err = f.svc.RemoveParticipant(ctx, admin, chatID, a)
	req.NoError(err)
	_, err = f.svc.AddParticipant(ctx, admin, chatID, a)
	req.NoError(err)
	_, err = f.svc.AddParticipant(ctx, admin, chatID, a)
	req.ErrorIs(err, apperr.ErrAlreadyMember)
	req.NoError(f.svc.Leave(ctx, b, chatID))

	chat, err := f.store.FindChat(ctx, chatID)
	req.NoError(err)
	ids := chat.ParticipantIDs()
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		req.False(seen[id], "duplicate active participant")
		seen[id] = true
	}
	req.Equal([]uuid.UUID{admin, c, a}, ids)
	req.True(chat.IsAdmin(admin))
}
