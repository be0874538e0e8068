package chat

import (
	"fmt"

	"nexus-chat/internal/entity"
)

// DefaultGroupName is used when a group is created without a name.
const DefaultGroupName = "New Group"

const (
	defaultPageSize = 50
	maxPageSize     = 100
	maxAttachments  = 5
	maxUploadBytes  = 10 << 20
)

// ---------------------------------------------
// Request DTOs
// ---------------------------------------------

type CreateGroupRequest struct {
	ChatName       string   `json:"chatName" validate:"max=100"`
	ParticipantIDs []string `json:"participantIds" validate:"required,dive,uuid"`
}

type RenameRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"max=4000"`
}

// File is an attachment received with a message, already read into memory.
type File struct {
	Name string
	Data []byte
}

// ---------------------------------------------
// System messages
// ---------------------------------------------

func renamedText(from, to string) string {
	return fmt.Sprintf(`changed the group subject from "%s" to "%s"`, from, to)
}

func addedText(u *entity.User) string {
	return "added " + identifier(u, "a new participant")
}

func removedText(u *entity.User) string {
	return "removed " + identifier(u, "a participant")
}

const leftText = "left the group"

func newAdminText(u *entity.User) string {
	return "made " + identifier(u, "a participant") + " the new admin"
}

func identifier(u *entity.User, fallback string) string {
	switch {
	case u == nil:
		return fallback
	case u.Username != "":
		return u.Username
	case u.FullName != "":
		return u.FullName
	default:
		return fallback
	}
}
