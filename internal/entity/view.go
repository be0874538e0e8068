package entity

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------
// Client-facing projections (never stored)
// ---------------------------------------------

// Profile is the public part of a User. Credentials and contact details are left out.
type Profile struct {
	ID         uuid.UUID `json:"_id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	ProfileURL string    `json:"profileUrl"`
	IsOnline   bool      `json:"isOnline"`
	LastSeen   time.Time `json:"lastSeen"`
}

type MessageView struct {
	Message
	Sender *Profile `json:"sender"`
}

type ParticipantView struct {
	UserID   uuid.UUID `json:"-"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	User     *Profile  `json:"user"`
}

type ChatView struct {
	ID            uuid.UUID         `json:"_id"`
	ChatName      *string           `json:"chatName"`
	IsGroupChat   bool              `json:"isGroupChat"`
	GroupAdminID  *uuid.UUID        `json:"groupAdmin"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	LatestMessage *MessageView      `json:"latestMessage"`
	Participants  []ParticipantView `json:"participants"`
}

// ParticipantIDs returns the user ids of the participants in the view, in join order.
func (v ChatView) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(v.Participants))
	for i, p := range v.Participants {
		ids[i] = p.UserID
	}
	return ids
}

func (v ChatView) HasParticipant(userID uuid.UUID) bool {
	for _, p := range v.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
