package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/blob"
	"nexus-chat/internal/cascade"
	"nexus-chat/internal/entity"
	"nexus-chat/internal/notify"
	"nexus-chat/internal/store"
	"nexus-chat/internal/view"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Store is the part of the entity store the engine works against.
type Store interface {
	store.ChatStore
	store.MessageStore
	store.UserDirectory
}

type Service struct {
	store    Store
	views    *view.Composer
	cascade  *cascade.Coordinator
	blobs    blob.Store
	notifier notify.Notifier
	log      *slog.Logger
	folder   string
	now      func() time.Time

	// oneOnOneMu serializes find-or-create so one pair never gets two chats.
	oneOnOneMu sync.Mutex
}

type Dependencies struct {
	Store    Store
	Views    *view.Composer
	Cascade  *cascade.Coordinator
	Blobs    blob.Store
	Notifier notify.Notifier
	Log      *slog.Logger
	// Folder receives uploaded attachments.
	Folder string
}

func NewService(d Dependencies) *Service {
	folder := d.Folder
	if folder == "" {
		folder = blob.DefaultFolder
	}
	return &Service{
		store:    d.Store,
		views:    d.Views,
		cascade:  d.Cascade,
		blobs:    d.Blobs,
		notifier: d.Notifier,
		log:      d.Log,
		folder:   folder,
		now:      time.Now,
	}
}

// ---------------------------------------------
// Membership
// ---------------------------------------------

func (s *Service) CreateOrGetOneOnOne(ctx context.Context, caller, receiver uuid.UUID) (*entity.ChatView, error) {
	if caller == receiver {
		return nil, apperr.ErrInvalidTarget
	}
	if _, err := s.store.FindUser(ctx, receiver); err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, apperr.ErrReceiverNotFound
		}
		return nil, err
	}

	s.oneOnOneMu.Lock()
	defer s.oneOnOneMu.Unlock()

	existing, err := s.views.OneOnOne(ctx, caller, receiver)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrChatNotFound) {
		return nil, err
	}

	now := s.now()
	chat := entity.Chat{
		ID:        uuid.New(),
		Avatar:    entity.Avatar{URL: entity.DefaultAvatarURL},
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []entity.Participant{
			{UserID: caller, Role: entity.RoleAdmin, JoinedAt: now},
			{UserID: receiver, Role: entity.RoleMember, JoinedAt: now},
		},
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create one-on-one chat: %w", err)
	}
	v, err := s.compose(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(notify.UserRoom(receiver), notify.NewChat, v)
	s.log.Info("One-on-one chat created", "chat_id", chat.ID, "caller", caller, "receiver", receiver)
	return v, nil
}

func (s *Service) CreateGroup(ctx context.Context, caller uuid.UUID, name string, memberIDs []uuid.UUID) (*entity.ChatView, error) {
	if lo.Contains(memberIDs, caller) {
		return nil, apperr.ErrInvalidParticipants
	}
	members := lo.Uniq(memberIDs)
	if len(members) < 2 {
		return nil, apperr.ErrInvalidParticipants
	}
	users, err := s.store.FindUsers(ctx, members)
	if err != nil {
		return nil, err
	}
	if len(users) != len(members) {
		return nil, apperr.ErrUserNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultGroupName
	}

	now := s.now()
	chat := entity.Chat{
		ID:           uuid.New(),
		ChatName:     &name,
		IsGroupChat:  true,
		Avatar:       entity.Avatar{URL: entity.DefaultAvatarURL},
		GroupAdminID: &caller,
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: []entity.Participant{{UserID: caller, Role: entity.RoleAdmin, JoinedAt: now}},
	}
	for _, id := range members {
		chat.Participants = append(chat.Participants, entity.Participant{UserID: id, Role: entity.RoleMember, JoinedAt: now})
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create group chat: %w", err)
	}
	v, err := s.compose(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	s.broadcast(members, notify.NewChat, v)
	s.log.Info("Group chat created", "chat_id", chat.ID, "admin", caller, "members", len(members))
	return v, nil
}

func (s *Service) Rename(ctx context.Context, caller, chatID uuid.UUID, newName string) (*entity.ChatView, error) {
	chat, err := s.group(ctx, chatID)
	if err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.ErrInvalidName
	}
	if !chat.HasParticipant(caller) {
		return nil, apperr.ErrNotInChat
	}
	if newName == chat.Name() {
		return s.views.Compose(ctx, chat)
	}

	if err := s.store.SetChatName(ctx, chatID, newName); err != nil {
		return nil, fmt.Errorf("rename chat: %w", err)
	}
	msg, err := s.systemMessage(ctx, chatID, caller, renamedText(chat.Name(), newName))
	if err != nil {
		return nil, err
	}
	v, err := s.compose(ctx, chatID)
	if err != nil {
		return nil, err
	}
	everyone := v.ParticipantIDs()
	s.broadcast(everyone, notify.GroupUpdated, v)
	s.broadcast(everyone, notify.MessageReceived, msg)
	return v, nil
}

func (s *Service) AddParticipant(ctx context.Context, caller, chatID, newUser uuid.UUID) (*entity.ChatView, error) {
	chat, err := s.group(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsAdmin(caller) {
		return nil, apperr.ErrNotAdmin
	}
	if chat.HasParticipant(newUser) {
		return nil, apperr.ErrAlreadyMember
	}
	added, err := s.store.FindUser(ctx, newUser)
	if err != nil {
		return nil, err
	}
	existing := chat.ParticipantIDs()

	p := entity.Participant{UserID: newUser, Role: entity.RoleMember, JoinedAt: s.now()}
	// The store re-checks the admin inside the write, so a concurrent transfer wins.
	if err := s.store.AddParticipant(ctx, chatID, p, caller); err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	msg, err := s.systemMessage(ctx, chatID, caller, addedText(&added))
	if err != nil {
		return nil, err
	}
	v, err := s.compose(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(notify.UserRoom(newUser), notify.NewChat, v)
	s.broadcast(existing, notify.GroupUpdated, v)
	s.broadcast(append(existing, newUser), notify.MessageReceived, msg)
	return v, nil
}

func (s *Service) RemoveParticipant(ctx context.Context, caller, chatID, target uuid.UUID) (*entity.ChatView, error) {
	chat, err := s.group(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsAdmin(caller) {
		return nil, apperr.ErrNotAdmin
	}
	if target == caller {
		return nil, apperr.ErrCannotRemoveSelf
	}
	if !chat.HasParticipant(target) {
		return nil, apperr.ErrNotAMember
	}

	if _, err := s.store.RemoveParticipant(ctx, chatID, target, s.now(), &caller); err != nil {
		return nil, fmt.Errorf("remove participant: %w", err)
	}
	s.notifier.Unsubscribe(target, notify.ChatRoom(chatID))
	msg, err := s.systemMessage(ctx, chatID, caller, removedText(s.findUser(ctx, target)))
	if err != nil {
		return nil, err
	}
	v, err := s.compose(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(notify.UserRoom(target), notify.LeftChat, v)
	remaining := v.ParticipantIDs()
	s.broadcast(remaining, notify.GroupUpdated, v)
	s.broadcast(remaining, notify.MessageReceived, msg)
	return v, nil
}

// Leave removes the caller. The last participant leaving deletes the chat.
func (s *Service) Leave(ctx context.Context, caller, chatID uuid.UUID) error {
	chat, err := s.group(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(caller) {
		return apperr.ErrNotAMember
	}

	// Succession and the emptiness check happen inside the store write, against the
	// membership as it is when the caller actually leaves.
	active, err := s.store.RemoveParticipant(ctx, chatID, caller, s.now(), nil)
	if err != nil {
		return fmt.Errorf("leave chat: %w", err)
	}
	s.notifier.Unsubscribe(caller, notify.ChatRoom(chatID))
	if active == 0 {
		if _, err := s.cascade.DeleteChat(ctx, chatID); err != nil {
			return fmt.Errorf("delete abandoned chat: %w", err)
		}
		return nil
	}

	msg, err := s.systemMessage(ctx, chatID, caller, leftText)
	if err != nil {
		return err
	}
	v, err := s.compose(ctx, chatID)
	if err != nil {
		return err
	}
	remaining := v.ParticipantIDs()
	s.broadcast(remaining, notify.GroupUpdated, v)
	s.broadcast(remaining, notify.MessageReceived, msg)
	return nil
}

func (s *Service) TransferAdmin(ctx context.Context, caller, chatID, target uuid.UUID) (*entity.ChatView, error) {
	chat, err := s.group(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsAdmin(caller) {
		return nil, apperr.ErrNotAdmin
	}
	if target == caller {
		return nil, apperr.ErrAlreadyAdmin
	}
	if !chat.HasParticipant(target) {
		return nil, apperr.ErrNotAMember
	}

	// Compare-and-set: a concurrent transfer makes this fail instead of overwriting it.
	if err := s.store.SetGroupAdmin(ctx, chatID, target, caller); err != nil {
		return nil, fmt.Errorf("transfer admin: %w", err)
	}
	msg, err := s.systemMessage(ctx, chatID, caller, newAdminText(s.findUser(ctx, target)))
	if err != nil {
		return nil, err
	}
	v, err := s.compose(ctx, chatID)
	if err != nil {
		return nil, err
	}
	everyone := v.ParticipantIDs()
	s.broadcast(everyone, notify.GroupUpdated, v)
	s.broadcast(everyone, notify.MessageReceived, msg)
	return v, nil
}

func (s *Service) DeleteGroup(ctx context.Context, caller, chatID uuid.UUID) error {
	chat, err := s.group(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsAdmin(caller) {
		return apperr.ErrNotAdmin
	}
	before, err := s.views.Compose(ctx, chat)
	if err != nil {
		return err
	}

	if _, err := s.cascade.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	s.evict(chat.ParticipantIDs(), chatID)
	s.broadcast(lo.Without(chat.ParticipantIDs(), caller), notify.LeftChat, before)
	return nil
}

func (s *Service) DeleteOneOnOne(ctx context.Context, caller, chatID uuid.UUID) error {
	chat, err := s.store.FindChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.IsGroupChat {
		return apperr.ErrNotOneOnOne
	}
	if !chat.HasParticipant(caller) {
		return apperr.ErrNotInChat
	}
	before, err := s.views.Compose(ctx, chat)
	if err != nil {
		return err
	}

	// The chat disappears for both users first; message cleanup follows.
	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete one-on-one chat: %w", err)
	}
	if _, err := s.cascade.DeleteMessages(ctx, chatID); err != nil {
		return fmt.Errorf("delete one-on-one messages: %w", err)
	}
	s.evict(chat.ParticipantIDs(), chatID)
	s.broadcast(lo.Without(chat.ParticipantIDs(), caller), notify.LeftChat, before)
	return nil
}

// ---------------------------------------------
// Reads
// ---------------------------------------------

// GetChat returns the view of a chat the caller participates in.
func (s *Service) GetChat(ctx context.Context, caller, chatID uuid.UUID) (*entity.ChatView, error) {
	v, err := s.views.ByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !v.HasParticipant(caller) {
		return nil, apperr.ErrNotInChat
	}
	return v, nil
}

func (s *Service) GetGroup(ctx context.Context, caller, chatID uuid.UUID) (*entity.ChatView, error) {
	v, err := s.GetChat(ctx, caller, chatID)
	if err != nil {
		return nil, err
	}
	if !v.IsGroupChat {
		return nil, apperr.ErrNotAGroup
	}
	return v, nil
}

// ListChats returns the caller's chats, most recently updated first.
func (s *Service) ListChats(ctx context.Context, caller uuid.UUID) ([]entity.ChatView, error) {
	chats, err := s.store.ListChatsForUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.views.ComposeMany(ctx, chats), nil
}

// CanJoin lets only participants subscribe to a chat room.
func (s *Service) CanJoin(ctx context.Context, userID, chatID uuid.UUID) error {
	chat, err := s.store.FindChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return apperr.ErrNotInChat
	}
	return nil
}

// ---------------------------------------------
// Helpers
// ---------------------------------------------

// group reads a fresh copy of a group chat.
func (s *Service) group(ctx context.Context, chatID uuid.UUID) (entity.Chat, error) {
	chat, err := s.store.FindChat(ctx, chatID)
	if err != nil {
		return entity.Chat{}, err
	}
	if !chat.IsGroupChat {
		return entity.Chat{}, apperr.ErrNotAGroup
	}
	return chat, nil
}

// compose re-reads a chat after a write. Failing here means the write landed but the
// chat cannot be shown, which is an internal failure; the write is not undone.
func (s *Service) compose(ctx context.Context, chatID uuid.UUID) (*entity.ChatView, error) {
	v, err := s.views.ByID(ctx, chatID)
	if err != nil {
		s.log.Error("Failed to compose chat after write", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("%w: compose chat %s: %v", apperr.ErrInternal, chatID, err)
	}
	return v, nil
}

// systemMessage records a membership event in the timeline and makes it the latest message.
func (s *Service) systemMessage(ctx context.Context, chatID, caller uuid.UUID, content string) (*entity.MessageView, error) {
	now := s.now()
	msg := entity.Message{
		ID:        uuid.New(),
		SenderID:  caller,
		ChatID:    chatID,
		Content:   content,
		Status:    []entity.DeliveryStatus{{UserID: caller, Status: entity.StatusSent, SeenAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.persistMessage(ctx, msg)
}

func (s *Service) persistMessage(ctx context.Context, msg entity.Message) (*entity.MessageView, error) {
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := s.store.SetLatestMessage(ctx, msg.ChatID, &msg.ID); err != nil {
		return nil, fmt.Errorf("set latest message: %w", err)
	}
	mv, err := s.views.Message(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: compose message %s: %v", apperr.ErrInternal, msg.ID, err)
	}
	return mv, nil
}

// findUser returns nil when the user cannot be resolved.
func (s *Service) findUser(ctx context.Context, id uuid.UUID) *entity.User {
	u, err := s.store.FindUser(ctx, id)
	if err != nil {
		return nil
	}
	return &u
}

func (s *Service) broadcast(userIDs []uuid.UUID, kind notify.Kind, payload any) {
	for _, id := range userIDs {
		s.notifier.Notify(notify.UserRoom(id), kind, payload)
	}
}

// evict drops the users' connections from the chat room so typing stops reaching them.
func (s *Service) evict(userIDs []uuid.UUID, chatID uuid.UUID) {
	for _, id := range userIDs {
		s.notifier.Unsubscribe(id, notify.ChatRoom(chatID))
	}
}

var _ notify.RoomAuthorizer = (*Service)(nil)
