package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"
	"nexus-chat/internal/notify"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// SendMessage stores a user message with its uploaded attachments and delivers it to the
// other participants.
func (s *Service) SendMessage(ctx context.Context, caller, chatID uuid.UUID, content string, files []File) (*entity.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(files) == 0 {
		return nil, apperr.ErrEmptyMessage
	}
	if len(files) > maxAttachments {
		return nil, apperr.Invalid(fmt.Sprintf("at most %d attachments per message", maxAttachments))
	}
	chat, err := s.store.FindChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(caller) {
		return nil, apperr.ErrNotInChat
	}

	attachments, err := s.upload(ctx, files)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := entity.Message{
		ID:          uuid.New(),
		SenderID:    caller,
		ChatID:      chatID,
		Content:     content,
		Attachments: attachments,
		Status:      []entity.DeliveryStatus{{UserID: caller, Status: entity.StatusSent, SeenAt: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	mv, err := s.persistMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.broadcast(lo.Without(chat.ParticipantIDs(), caller), notify.MessageReceived, mv)
	return mv, nil
}

// upload pushes every file to blob storage. On failure the files already uploaded are removed.
func (s *Service) upload(ctx context.Context, files []File) ([]entity.Attachment, error) {
	attachments := make([]entity.Attachment, 0, len(files))
	for _, f := range files {
		obj, err := s.blobs.Upload(ctx, bytes.NewReader(f.Data), s.folder)
		if err != nil {
			s.discard(ctx, attachments)
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		attachments = append(attachments, entity.Attachment{
			URL:        obj.URL,
			Type:       mimetype.Detect(f.Data).String(),
			Size:       int64(len(f.Data)),
			ExternalID: obj.ExternalID,
		})
	}
	return attachments, nil
}

func (s *Service) discard(ctx context.Context, attachments []entity.Attachment) {
	ids := lo.FilterMap(attachments, func(a entity.Attachment, _ int) (string, bool) {
		return a.ExternalID, a.ExternalID != ""
	})
	if len(ids) == 0 {
		return
	}
	for id, err := range s.blobs.DeleteMany(context.WithoutCancel(ctx), ids) {
		if err != nil {
			s.log.Warn("Failed to delete attachment", "external_id", id, "error", err)
		}
	}
}

// ListMessages returns a page of history, newest first, to a participant.
func (s *Service) ListMessages(ctx context.Context, caller, chatID uuid.UUID, before *time.Time, limit int) ([]entity.MessageView, error) {
	if err := s.CanJoin(ctx, caller, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	msgs, err := s.store.ListMessages(ctx, chatID, before, limit)
	if err != nil {
		return nil, err
	}
	return s.views.Messages(ctx, msgs)
}

// DeleteMessage lets the sender retract a message. Its attachments are removed best-effort
// and the chat's latest message moves back to the newest remaining one.
func (s *Service) DeleteMessage(ctx context.Context, caller, chatID, messageID uuid.UUID) (*entity.MessageView, error) {
	chat, err := s.store.FindChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(caller) {
		return nil, apperr.ErrNotInChat
	}
	msg, err := s.store.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, apperr.ErrMessageNotFound
	}
	if msg.SenderID != caller {
		return nil, apperr.ErrNotAuthor
	}
	if msg.IsDeleted {
		return s.views.Message(ctx, msg)
	}

	s.discard(ctx, msg.Attachments)
	if err := s.store.MarkMessageDeleted(ctx, messageID, s.now()); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}
	if chat.LatestMessageID != nil && *chat.LatestMessageID == messageID {
		if err := s.repointLatest(ctx, chatID); err != nil {
			return nil, err
		}
	}

	deleted, err := s.store.FindMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload message %s: %v", apperr.ErrInternal, messageID, err)
	}
	mv, err := s.views.Message(ctx, deleted)
	if err != nil {
		return nil, fmt.Errorf("%w: compose message %s: %v", apperr.ErrInternal, messageID, err)
	}
	s.broadcast(lo.Without(chat.ParticipantIDs(), caller), notify.MessageDeleted, mv)
	return mv, nil
}

func (s *Service) repointLatest(ctx context.Context, chatID uuid.UUID) error {
	latest, err := s.store.LatestMessage(ctx, chatID)
	switch {
	case errors.Is(err, apperr.ErrMessageNotFound):
		return s.store.SetLatestMessage(ctx, chatID, nil)
	case err != nil:
		return fmt.Errorf("find latest message: %w", err)
	default:
		return s.store.SetLatestMessage(ctx, chatID, &latest.ID)
	}
}
