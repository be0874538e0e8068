package user

import (
	"context"

	"nexus-chat/internal/entity"

	"github.com/google/uuid"
)

// Repository is the credential side of the users table. store.Postgres and store.Memory implement it.
type Repository interface {
	CreateUser(ctx context.Context, u entity.User, passwordHash string) error
	FindCredentials(ctx context.Context, identifier string) (entity.User, string, error)
	FindUser(ctx context.Context, id uuid.UUID) (entity.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]entity.User, error)
}
