package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, username, full_name, email, phone, profile_url, is_online, last_seen`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

func (r *Postgres) CreateUser(ctx context.Context, u entity.User, passwordHash string) error {
	query := `INSERT INTO users (` + userColumns + `, password) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Username, u.FullName, u.Email, u.Phone, u.ProfileURL, u.IsOnline, u.LastSeen, passwordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.ErrUserTaken
	}
	return err
}

func (r *Postgres) FindCredentials(ctx context.Context, identifier string) (entity.User, string, error) {
	query := `SELECT ` + userColumns + `, password FROM users
		WHERE username = $1 OR lower(email) = lower($1) OR (phone <> '' AND phone = $1)
		LIMIT 1`
	var hash string
	u, err := scanUser(r.db.QueryRowContext(ctx, query, identifier), &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, "", apperr.ErrUserNotFound
		}
		return entity.User{}, "", err
	}
	return u, hash, nil
}

func (r *Postgres) SearchUsers(ctx context.Context, query string, limit int) ([]entity.User, error) {
	// We limit to keep it fast
	q := `SELECT ` + userColumns + ` FROM users WHERE username ILIKE $1 ORDER BY username LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Postgres) FindUser(ctx context.Context, id uuid.UUID) (entity.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, apperr.ErrUserNotFound
	}
	return u, err
}

func (r *Postgres) FindUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]entity.User, error) {
	out := make(map[uuid.UUID]entity.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (r *Postgres) FindUserByIdentifier(ctx context.Context, identifier string) (entity.User, error) {
	u, _, err := r.FindCredentials(ctx, identifier)
	return u, err
}

func (r *Postgres) SetPresence(ctx context.Context, id uuid.UUID, online bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1`, id, online, at)
	return expectRow(res, err, apperr.ErrUserNotFound)
}

// scanUser reads userColumns, plus any trailing destinations such as the password hash.
func scanUser(row scanner, extra ...any) (entity.User, error) {
	var u entity.User
	dest := append([]any{&u.ID, &u.Username, &u.FullName, &u.Email, &u.Phone, &u.ProfileURL, &u.IsOnline, &u.LastSeen}, extra...)
	if err := row.Scan(dest...); err != nil {
		return entity.User{}, err
	}
	return u, nil
}
