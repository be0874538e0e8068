package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type userRecord struct {
	user entity.User
	hash string
}

type messageRecord struct {
	msg entity.Message
	seq uint64
}

// Memory is an in-process Store. Reads return deep copies.
type Memory struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]userRecord
	chats    map[uuid.UUID]entity.Chat
	messages map[uuid.UUID]messageRecord
	seq      uint64
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uuid.UUID]userRecord),
		chats:    make(map[uuid.UUID]entity.Chat),
		messages: make(map[uuid.UUID]messageRecord),
		now:      time.Now,
	}
}

// PutUser inserts or replaces a user without credentials.
func (m *Memory) PutUser(u entity.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.users[u.ID]
	rec.user = u
	m.users[u.ID] = rec
}

// ---------------------------------------------
// Users
// ---------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u entity.User, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.users {
		if strings.EqualFold(rec.user.Username, u.Username) || (u.Email != "" && strings.EqualFold(rec.user.Email, u.Email)) {
			return apperr.ErrUserTaken
		}
	}
	m.users[u.ID] = userRecord{user: u, hash: passwordHash}
	return nil
}

func (m *Memory) FindCredentials(_ context.Context, identifier string) (entity.User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byIdentifier(identifier)
	if !ok {
		return entity.User{}, "", apperr.ErrUserNotFound
	}
	return rec.user, rec.hash, nil
}

func (m *Memory) SearchUsers(_ context.Context, query string, limit int) ([]entity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	query = strings.ToLower(query)
	var out []entity.User
	for _, rec := range m.users {
		if strings.Contains(strings.ToLower(rec.user.Username), query) {
			out = append(out, rec.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindUser(_ context.Context, id uuid.UUID) (entity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[id]
	if !ok {
		return entity.User{}, apperr.ErrUserNotFound
	}
	return rec.user, nil
}

func (m *Memory) FindUsers(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]entity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]entity.User, len(ids))
	for _, id := range ids {
		if rec, ok := m.users[id]; ok {
			out[id] = rec.user
		}
	}
	return out, nil
}

func (m *Memory) FindUserByIdentifier(_ context.Context, identifier string) (entity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byIdentifier(identifier)
	if !ok {
		return entity.User{}, apperr.ErrUserNotFound
	}
	return rec.user, nil
}

func (m *Memory) byIdentifier(identifier string) (userRecord, bool) {
	for _, rec := range m.users {
		u := rec.user
		if u.Username == identifier || (u.Email != "" && strings.EqualFold(u.Email, identifier)) || (u.Phone != "" && u.Phone == identifier) {
			return rec, true
		}
	}
	return userRecord{}, false
}

func (m *Memory) SetPresence(_ context.Context, id uuid.UUID, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return apperr.ErrUserNotFound
	}
	rec.user.IsOnline = online
	rec.user.LastSeen = at
	m.users[id] = rec
	return nil
}

// ---------------------------------------------
// Chats
// ---------------------------------------------

func (m *Memory) FindChat(_ context.Context, id uuid.UUID) (entity.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[id]
	if !ok {
		return entity.Chat{}, apperr.ErrChatNotFound
	}
	return chat.Clone(), nil
}

func (m *Memory) FindOneOnOne(_ context.Context, a, b uuid.UUID) (entity.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chat := range m.chats {
		if !chat.IsGroupChat && chat.HasParticipant(a) && chat.HasParticipant(b) {
			return chat.Clone(), nil
		}
	}
	return entity.Chat{}, apperr.ErrChatNotFound
}

func (m *Memory) ListChatsForUser(_ context.Context, userID uuid.UUID) ([]entity.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entity.Chat
	for _, chat := range m.chats {
		if chat.HasParticipant(userID) {
			out = append(out, chat.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) CreateChat(_ context.Context, chat entity.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chat.ID] = chat.Clone()
	return nil
}

func (m *Memory) SetChatName(_ context.Context, id uuid.UUID, name string) error {
	return m.updateChat(id, func(c *entity.Chat) error {
		c.ChatName = &name
		return nil
	})
}

func (m *Memory) AddParticipant(_ context.Context, id uuid.UUID, p entity.Participant, expectedAdmin uuid.UUID) error {
	return m.updateChat(id, func(c *entity.Chat) error {
		if !c.IsAdmin(expectedAdmin) {
			return apperr.ErrStaleAdmin
		}
		if c.HasParticipant(p.UserID) {
			return apperr.ErrAlreadyMember
		}
		// A returning user re-joins at the end of the join order.
		c.Participants = lo.Reject(c.Participants, func(old entity.Participant, _ int) bool {
			return old.UserID == p.UserID
		})
		p.LeftAt = nil
		c.Participants = append(c.Participants, p)
		return nil
	})
}

func (m *Memory) RemoveParticipant(_ context.Context, id, userID uuid.UUID, at time.Time, expectedAdmin *uuid.UUID) (int, error) {
	var remaining int
	err := m.updateChat(id, func(c *entity.Chat) error {
		if expectedAdmin != nil && !c.IsAdmin(*expectedAdmin) {
			return apperr.ErrStaleAdmin
		}
		if !c.HasParticipant(userID) {
			return apperr.ErrNotAMember
		}
		wasAdmin := c.IsAdmin(userID)
		for i := range c.Participants {
			p := &c.Participants[i]
			if p.Active() && p.UserID == userID {
				left := at
				p.LeftAt = &left
				p.Role = entity.RoleMember
			}
		}
		active := c.ParticipantIDs()
		remaining = len(active)
		if wasAdmin && remaining > 0 {
			promote(c, active[0])
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (m *Memory) SetGroupAdmin(_ context.Context, id, newAdmin, expectedAdmin uuid.UUID) error {
	return m.updateChat(id, func(c *entity.Chat) error {
		if !c.IsAdmin(expectedAdmin) {
			return apperr.ErrStaleAdmin
		}
		if !c.HasParticipant(newAdmin) {
			return apperr.ErrNotAMember
		}
		promote(c, newAdmin)
		return nil
	})
}

func promote(c *entity.Chat, userID uuid.UUID) {
	admin := userID
	c.GroupAdminID = &admin
	for i := range c.Participants {
		p := &c.Participants[i]
		if !p.Active() {
			continue
		}
		if p.UserID == userID {
			p.Role = entity.RoleAdmin
		} else {
			p.Role = entity.RoleMember
		}
	}
}

func (m *Memory) SetLatestMessage(_ context.Context, id uuid.UUID, messageID *uuid.UUID) error {
	return m.updateChat(id, func(c *entity.Chat) error {
		if messageID == nil {
			c.LatestMessageID = nil
			return nil
		}
		latest := *messageID
		c.LatestMessageID = &latest
		return nil
	})
}

func (m *Memory) DeleteChat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, id)
	return nil
}

func (m *Memory) updateChat(id uuid.UUID, apply func(c *entity.Chat) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return apperr.ErrChatNotFound
	}
	chat = chat.Clone()
	if err := apply(&chat); err != nil {
		return err
	}
	chat.UpdatedAt = m.now()
	m.chats[id] = chat
	return nil
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

func (m *Memory) CreateMessage(_ context.Context, msg entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.messages[msg.ID] = messageRecord{msg: msg.Clone(), seq: m.seq}
	return nil
}

func (m *Memory) FindMessage(_ context.Context, id uuid.UUID) (entity.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.messages[id]
	if !ok {
		return entity.Message{}, apperr.ErrMessageNotFound
	}
	return rec.msg.Clone(), nil
}

// chatMessages returns the chat's records newest first. Caller holds the lock.
func (m *Memory) chatMessages(chatID uuid.UUID) []messageRecord {
	var recs []messageRecord
	for _, rec := range m.messages {
		if rec.msg.ChatID == chatID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].msg.CreatedAt.Equal(recs[j].msg.CreatedAt) {
			return recs[i].msg.CreatedAt.After(recs[j].msg.CreatedAt)
		}
		return recs[i].seq > recs[j].seq
	})
	return recs
}

func (m *Memory) ListMessages(_ context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]entity.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entity.Message
	for _, rec := range m.chatMessages(chatID) {
		if before != nil && !rec.msg.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, rec.msg.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ListMessagesWithAttachments(_ context.Context, chatID uuid.UUID) ([]entity.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entity.Message
	for _, rec := range m.chatMessages(chatID) {
		if len(rec.msg.Attachments) > 0 {
			out = append(out, rec.msg.Clone())
		}
	}
	return out, nil
}

func (m *Memory) LatestMessage(_ context.Context, chatID uuid.UUID) (entity.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.chatMessages(chatID) {
		if !rec.msg.IsDeleted {
			return rec.msg.Clone(), nil
		}
	}
	return entity.Message{}, apperr.ErrMessageNotFound
}

func (m *Memory) MarkMessageDeleted(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.messages[id]
	if !ok {
		return apperr.ErrMessageNotFound
	}
	rec.msg.IsDeleted = true
	rec.msg.Content = ""
	rec.msg.Attachments = nil
	rec.msg.UpdatedAt = at
	m.messages[id] = rec
	return nil
}

func (m *Memory) DeleteMessagesByChat(_ context.Context, chatID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.messages {
		if rec.msg.ChatID == chatID {
			delete(m.messages, id)
			n++
		}
	}
	return n, nil
}

var _ Store = (*Memory)(nil)
