// Package apperr is the error taxonomy shared by the chat engine and its HTTP surface.
// Every error that crosses the API boundary is classified by Kind, which maps to a status code.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidInput
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status maps a Kind to the HTTP status returned to clients.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Cause links a specific error to a broader sentinel
// so that errors.Is matches both.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Refine returns an error of the same kind as base, with its own message, that still
// matches base under errors.Is.
func Refine(base *Error, msg string) *Error {
	return &Error{Kind: base.Kind, Msg: msg, Cause: base}
}

func Invalid(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg, Cause: ErrInvalidInput}
}

var (
	ErrInvalidInput = New(KindInvalidInput, "invalid input")
	ErrInternal     = New(KindInternal, "internal server error")

	ErrChatNotFound    = New(KindNotFound, "chat does not exist")
	ErrUserNotFound    = New(KindNotFound, "user does not exist")
	ErrMessageNotFound = New(KindNotFound, "message does not exist")

	ErrForbidden  = New(KindForbidden, "forbidden")
	ErrNotAdmin   = Refine(ErrForbidden, "only the group admin can perform this action")
	ErrNotInChat  = Refine(ErrForbidden, "you are not a participant of this chat")
	ErrNotAuthor  = Refine(ErrForbidden, "only the sender can delete this message")
	ErrStaleAdmin = Refine(ErrForbidden, "group admin changed, retry the request")

	ErrInvalidTarget       = New(KindInvalidInput, "you cannot chat with yourself")
	ErrReceiverNotFound    = &Error{Kind: KindNotFound, Msg: "receiver does not exist", Cause: ErrInvalidTarget}
	ErrInvalidParticipants = New(KindInvalidInput, "a group chat needs at least two other distinct participants and must not list its creator")
	ErrNotAGroup           = New(KindInvalidInput, "this is not a group chat")
	ErrNotOneOnOne         = New(KindInvalidInput, "this endpoint is only for one-on-one chats")
	ErrInvalidName         = New(KindInvalidInput, "group name cannot be empty")
	ErrNotAMember          = New(KindInvalidInput, "user is not a participant of this group chat")
	ErrEmptyMessage        = New(KindInvalidInput, "message must have content or attachments")

	ErrAlreadyMember    = New(KindConflict, "user is already in this group")
	ErrAlreadyAdmin     = New(KindConflict, "you are already the admin of this group")
	ErrCannotRemoveSelf = New(KindConflict, "admin cannot remove themselves, use leave instead")
	ErrUserTaken        = New(KindConflict, "username or email already taken")
)

// KindOf classifies any error. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is the message safe to show a client: internal failures never expose detail.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return ErrInternal.Msg
}
