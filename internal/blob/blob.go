//go:generate go run go.uber.org/mock/mockgen -source=blob.go -destination=../mocks/mock_blob.go -package=mocks

// Package blob stores message attachments and chat avatars outside the database.
package blob

import (
	"context"
	"io"
)

// DefaultFolder groups every asset uploaded by the service.
const DefaultFolder = "nexus_chat_assets"

type Object struct {
	URL        string
	ExternalID string
}

type Store interface {
	Upload(ctx context.Context, r io.Reader, folder string) (Object, error)
	Delete(ctx context.Context, externalID string) error
	// DeleteMany reports a result per id; a nil value means the object is gone.
	DeleteMany(ctx context.Context, externalIDs []string) map[string]error
}
