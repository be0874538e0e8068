// Package cascade removes a chat together with everything that exists only because of it:
// its messages and the externally stored attachments those messages reference.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"nexus-chat/internal/blob"
	"nexus-chat/internal/entity"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// Store is what the coordinator needs from the entity store.
type Store interface {
	ListMessagesWithAttachments(ctx context.Context, chatID uuid.UUID) ([]entity.Message, error)
	DeleteMessagesByChat(ctx context.Context, chatID uuid.UUID) (int, error)
	DeleteChat(ctx context.Context, id uuid.UUID) error
}

// Report summarizes one cascade run.
type Report struct {
	Attachments int
	// Failed lists the external ids that could not be deleted, sorted.
	Failed   []string
	Messages int
}

type Coordinator struct {
	store Store
	blobs blob.Store
	log   *slog.Logger
	limit int
}

func NewCoordinator(store Store, blobs blob.Store, log *slog.Logger, limit int) *Coordinator {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Coordinator{store: store, blobs: blobs, log: log, limit: limit}
}

// DeleteChat removes attachments, then messages, then the chat record.
// A chat record that is already gone is not an error.
func (c *Coordinator) DeleteChat(ctx context.Context, chatID uuid.UUID) (Report, error) {
	report, err := c.DeleteMessages(ctx, chatID)
	if err != nil {
		return report, err
	}
	if err := c.store.DeleteChat(ctx, chatID); err != nil {
		return report, fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	c.log.Info("Chat deleted", "chat_id", chatID, "messages", report.Messages,
		"attachments", report.Attachments, "failed_attachments", len(report.Failed))
	return report, nil
}

// DeleteMessages removes attachments and messages but leaves the chat record alone.
// Used by callers that delete the chat record themselves.
func (c *Coordinator) DeleteMessages(ctx context.Context, chatID uuid.UUID) (Report, error) {
	var report Report

	withFiles, err := c.store.ListMessagesWithAttachments(ctx, chatID)
	if err != nil {
		// Orphaned blobs are acceptable, orphaned messages are not: keep going.
		c.log.Error("Failed to list attachments, skipping blob cleanup", "chat_id", chatID, "error", err)
	}
	ids := lo.Uniq(lo.FlatMap(withFiles, func(m entity.Message, _ int) []string { return m.ExternalIDs() }))
	report.Attachments = len(ids)
	report.Failed = c.deleteObjects(ctx, chatID, ids)

	n, err := c.store.DeleteMessagesByChat(ctx, chatID)
	report.Messages = n
	if err != nil {
		return report, fmt.Errorf("delete messages of chat %s: %w", chatID, err)
	}
	return report, nil
}

// deleteObjects runs the deletes with bounded concurrency and waits for all of them.
func (c *Coordinator) deleteObjects(ctx context.Context, chatID uuid.UUID, ids []string) []string {
	var (
		mu     sync.Mutex
		failed []string
	)
	// Detached so a cancelled request does not abandon a cleanup already under way.
	ctx = context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(c.limit)
	for _, id := range ids {
		g.Go(func() error {
			if err := c.blobs.Delete(ctx, id); err != nil {
				c.log.Warn("Failed to delete attachment", "chat_id", chatID, "external_id", id, "error", err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(failed)
	return failed
}
