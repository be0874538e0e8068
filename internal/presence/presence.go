// Package presence tracks which users currently hold a live connection.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Tracker interface {
	// Online is called when a user's first connection opens.
	Online(ctx context.Context, userID uuid.UUID) error
	// Refresh keeps an online user alive; called on every heartbeat.
	Refresh(ctx context.Context, userID uuid.UUID) error
	// Offline is called when a user's last connection closes.
	Offline(ctx context.Context, userID uuid.UUID) error
	// Statuses reports live status for the given users. A nil map means "no live source".
	Statuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Directory persists isOnline/lastSeen on the user record.
type Directory interface {
	SetPresence(ctx context.Context, id uuid.UUID, online bool, at time.Time) error
}

// DirectoryTracker writes presence straight to the user directory. It is used when Redis
// is not configured; the stored isOnline flag is then the only source of truth.
type DirectoryTracker struct {
	users Directory
	log   *slog.Logger
	now   func() time.Time
}

func NewDirectoryTracker(users Directory, log *slog.Logger) *DirectoryTracker {
	return &DirectoryTracker{users: users, log: log, now: time.Now}
}

func (t *DirectoryTracker) Online(ctx context.Context, userID uuid.UUID) error {
	return t.users.SetPresence(ctx, userID, true, t.now())
}

func (t *DirectoryTracker) Refresh(context.Context, uuid.UUID) error { return nil }

func (t *DirectoryTracker) Offline(ctx context.Context, userID uuid.UUID) error {
	return t.users.SetPresence(ctx, userID, false, t.now())
}

func (t *DirectoryTracker) Statuses(context.Context, []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, nil
}
