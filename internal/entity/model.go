package entity

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------
// Stored Entities
// ---------------------------------------------

// DefaultAvatarURL is used for chats that never uploaded an avatar.
const DefaultAvatarURL = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

// User is owned by the identity subsystem. The chat core only reads it.
type User struct {
	ID         uuid.UUID `json:"_id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Phone      string    `json:"phoneNumber,omitempty"`
	ProfileURL string    `json:"profileUrl"`
	IsOnline   bool      `json:"isOnline"`
	LastSeen   time.Time `json:"lastSeen"`
}

// Profile returns the allow-listed summary sent with chat views.
func (u User) Profile() *Profile {
	return &Profile{
		ID:         u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		ProfileURL: u.ProfileURL,
		IsOnline:   u.IsOnline,
		LastSeen:   u.LastSeen,
	}
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Participant struct {
	UserID   uuid.UUID  `json:"user"`
	Role     Role       `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

func (p Participant) Active() bool { return p.LeftAt == nil }

type Avatar struct {
	URL        string `json:"url"`
	ExternalID string `json:"publicId,omitempty"`
}

type Chat struct {
	ID              uuid.UUID     `json:"_id"`
	ChatName        *string       `json:"chatName"`
	IsGroupChat     bool          `json:"isGroupChat"`
	Participants    []Participant `json:"participants"`
	Description     string        `json:"description,omitempty"`
	Avatar          Avatar        `json:"avatar"`
	LatestMessageID *uuid.UUID    `json:"latestMessage"`
	GroupAdminID    *uuid.UUID    `json:"groupAdmin"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ActiveParticipants keeps join order.
func (c Chat) ActiveParticipants() []Participant {
	active := make([]Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

func (c Chat) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.Active() {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func (c Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.Active() && p.UserID == userID {
			return true
		}
	}
	return false
}

func (c Chat) IsAdmin(userID uuid.UUID) bool {
	return c.GroupAdminID != nil && *c.GroupAdminID == userID
}

func (c Chat) Name() string {
	if c.ChatName == nil {
		return ""
	}
	return *c.ChatName
}

// Clone deep-copies the chat so callers never share participant slices or pointers.
func (c Chat) Clone() Chat {
	out := c
	out.Participants = make([]Participant, len(c.Participants))
	for i, p := range c.Participants {
		out.Participants[i] = p
		if p.LeftAt != nil {
			at := *p.LeftAt
			out.Participants[i].LeftAt = &at
		}
	}
	if c.ChatName != nil {
		name := *c.ChatName
		out.ChatName = &name
	}
	if c.LatestMessageID != nil {
		id := *c.LatestMessageID
		out.LatestMessageID = &id
	}
	if c.GroupAdminID != nil {
		id := *c.GroupAdminID
		out.GroupAdminID = &id
	}
	return out
}

type Attachment struct {
	URL        string `json:"fileUrl"`
	Type       string `json:"fileType"`
	Size       int64  `json:"fileSize"`
	ExternalID string `json:"publicId,omitempty"`
}

type Reaction struct {
	UserID   uuid.UUID `json:"userId"`
	Reaction string    `json:"reaction"`
}

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

type DeliveryStatus struct {
	UserID uuid.UUID `json:"userId"`
	Status Status    `json:"status"`
	SeenAt time.Time `json:"seenAt"`
}

type Message struct {
	ID          uuid.UUID        `json:"_id"`
	SenderID    uuid.UUID        `json:"senderId"`
	ChatID      uuid.UUID        `json:"chatId"`
	Content     string           `json:"content"`
	Pinned      bool             `json:"pinned"`
	ReplyToID   *uuid.UUID       `json:"replyTo,omitempty"`
	IsDeleted   bool             `json:"isDeleted"`
	Attachments []Attachment     `json:"attachments"`
	Reactions   []Reaction       `json:"reactions"`
	Status      []DeliveryStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// ExternalIDs lists the blob-storage ids referenced by the message attachments.
func (m Message) ExternalIDs() []string {
	ids := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a.ExternalID != "" {
			ids = append(ids, a.ExternalID)
		}
	}
	return ids
}

func (m Message) Clone() Message {
	out := m
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.Reactions = append([]Reaction(nil), m.Reactions...)
	out.Status = append([]DeliveryStatus(nil), m.Status...)
	if m.ReplyToID != nil {
		id := *m.ReplyToID
		out.ReplyToID = &id
	}
	return out
}
