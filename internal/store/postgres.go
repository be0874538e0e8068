package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Postgres stores chats in three tables: chats, chat_participants (the embedded
// participant list, ordered by ordinal) and messages. The schema lives in internal/db.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

const chatColumns = `id, chat_name, is_group_chat, description, avatar_url, avatar_external_id,
	latest_message_id, group_admin_id, created_at, updated_at`

// ---------------------------------------------
// Chats
// ---------------------------------------------

func (r *Postgres) FindChat(ctx context.Context, id uuid.UUID) (entity.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Chat{}, apperr.ErrChatNotFound
		}
		return entity.Chat{}, err
	}
	participants, err := r.participants(ctx, []uuid.UUID{id})
	if err != nil {
		return entity.Chat{}, err
	}
	chat.Participants = participants[id]
	return chat, nil
}

func (r *Postgres) FindOneOnOne(ctx context.Context, a, b uuid.UUID) (entity.Chat, error) {
	query := `
		SELECT c.id FROM chats c
		WHERE NOT c.is_group_chat
		  AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = $1 AND p.left_at IS NULL)
		  AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = $2 AND p.left_at IS NULL)
		ORDER BY c.created_at
		LIMIT 1`
	var id uuid.UUID
	if err := r.db.QueryRowContext(ctx, query, a, b).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Chat{}, apperr.ErrChatNotFound
		}
		return entity.Chat{}, err
	}
	return r.FindChat(ctx, id)
}

func (r *Postgres) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]entity.Chat, error) {
	query := `
		SELECT ` + chatColumns + ` FROM chats
		WHERE id IN (SELECT chat_id FROM chat_participants WHERE user_id = $1 AND left_at IS NULL)
		ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []entity.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := lo.Map(chats, func(c entity.Chat, _ int) uuid.UUID { return c.ID })
	participants, err := r.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		chats[i].Participants = participants[chats[i].ID]
	}
	return chats, nil
}

func (r *Postgres) participants(ctx context.Context, chatIDs []uuid.UUID) (map[uuid.UUID][]entity.Participant, error) {
	out := make(map[uuid.UUID][]entity.Participant, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT chat_id, user_id, role, joined_at, left_at
		FROM chat_participants
		WHERE chat_id = ANY($1::uuid[])
		ORDER BY ordinal`
	rows, err := r.db.QueryContext(ctx, query, uuidStrings(chatIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chatID uuid.UUID
			p      entity.Participant
			role   string
			leftAt sql.NullTime
		)
		if err := rows.Scan(&chatID, &p.UserID, &role, &p.JoinedAt, &leftAt); err != nil {
			return nil, err
		}
		p.Role = entity.Role(role)
		if leftAt.Valid {
			p.LeftAt = &leftAt.Time
		}
		out[chatID] = append(out[chatID], p)
	}
	return out, rows.Err()
}

func (r *Postgres) CreateChat(ctx context.Context, chat entity.Chat) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chats (id, chat_name, is_group_chat, description, avatar_url, avatar_external_id,
				latest_message_id, group_admin_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			chat.ID, chat.ChatName, chat.IsGroupChat, chat.Description, chat.Avatar.URL, chat.Avatar.ExternalID,
			nullUUID(chat.LatestMessageID), nullUUID(chat.GroupAdminID), chat.CreatedAt, chat.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		for _, p := range chat.Participants {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO chat_participants (chat_id, user_id, role, joined_at, left_at)
				VALUES ($1, $2, $3, $4, $5)`,
				chat.ID, p.UserID, string(p.Role), p.JoinedAt, p.LeftAt)
			if err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		return nil
	})
}

func (r *Postgres) SetChatName(ctx context.Context, id uuid.UUID, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET chat_name = $2, updated_at = now() WHERE id = $1`, id, name)
	return expectRow(res, err, apperr.ErrChatNotFound)
}

func (r *Postgres) AddParticipant(ctx context.Context, id uuid.UUID, p entity.Participant, expectedAdmin uuid.UUID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockChat(ctx, tx, id, &expectedAdmin); err != nil {
			return err
		}
		if err := touchChat(ctx, tx, id); err != nil {
			return err
		}
		// A returning user gets a fresh ordinal so they re-join at the end of the list.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chat_participants (chat_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (chat_id, user_id) DO UPDATE
				SET role = EXCLUDED.role, joined_at = EXCLUDED.joined_at, left_at = NULL,
				    ordinal = nextval('chat_participants_ordinal_seq')
				WHERE chat_participants.left_at IS NOT NULL`,
			id, p.UserID, string(p.Role), p.JoinedAt)
		return expectRow(res, err, apperr.ErrAlreadyMember)
	})
}

func (r *Postgres) RemoveParticipant(ctx context.Context, id, userID uuid.UUID, at time.Time, expectedAdmin *uuid.UUID) (int, error) {
	var remaining int
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		admin, err := lockChat(ctx, tx, id, expectedAdmin)
		if err != nil {
			return err
		}
		if err := touchChat(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE chat_participants SET left_at = $3, role = 'member'
			WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL`, id, userID, at)
		if err := expectRow(res, err, apperr.ErrNotAMember); err != nil {
			return err
		}

		var next uuid.NullUUID
		err = tx.QueryRowContext(ctx, `
			SELECT
				(SELECT count(*) FROM chat_participants WHERE chat_id = $1 AND left_at IS NULL),
				(SELECT user_id FROM chat_participants WHERE chat_id = $1 AND left_at IS NULL ORDER BY ordinal LIMIT 1)`,
			id).Scan(&remaining, &next)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if admin.Valid && admin.UUID == userID && next.Valid {
			return promoteTx(ctx, tx, id, next.UUID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *Postgres) SetGroupAdmin(ctx context.Context, id, newAdmin, expectedAdmin uuid.UUID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockChat(ctx, tx, id, &expectedAdmin); err != nil {
			return err
		}
		var active bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL)`,
			id, newAdmin).Scan(&active)
		if err != nil {
			return err
		}
		if !active {
			return apperr.ErrNotAMember
		}
		return promoteTx(ctx, tx, id, newAdmin)
	})
}

// lockChat holds the chat row for the rest of the transaction, serializing membership
// writes, and returns the current admin. A non-nil expected admin must still hold the group.
func lockChat(ctx context.Context, tx *sql.Tx, id uuid.UUID, expected *uuid.UUID) (uuid.NullUUID, error) {
	var current uuid.NullUUID
	err := tx.QueryRowContext(ctx, `SELECT group_admin_id FROM chats WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return current, apperr.ErrChatNotFound
		}
		return current, err
	}
	if expected != nil && (!current.Valid || current.UUID != *expected) {
		return current, apperr.ErrStaleAdmin
	}
	return current, nil
}

func promoteTx(ctx context.Context, tx *sql.Tx, id, admin uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET group_admin_id = $2, updated_at = now() WHERE id = $1`, id, admin); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE chat_participants
		SET role = CASE WHEN user_id = $2 THEN 'admin' ELSE 'member' END
		WHERE chat_id = $1 AND left_at IS NULL`, id, admin)
	return err
}

func (r *Postgres) SetLatestMessage(ctx context.Context, id uuid.UUID, messageID *uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET latest_message_id = $2, updated_at = now() WHERE id = $1`, id, nullUUID(messageID))
	return expectRow(res, err, apperr.ErrChatNotFound)
}

func (r *Postgres) DeleteChat(ctx context.Context, id uuid.UUID) error {
	// chat_participants rows go with the chat through ON DELETE CASCADE.
	_, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	return err
}

func touchChat(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, id)
	return expectRow(res, err, apperr.ErrChatNotFound)
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

const messageColumns = `id, sender_id, chat_id, content, pinned, reply_to_id, is_deleted,
	attachments, reactions, status, created_at, updated_at`

func (r *Postgres) CreateMessage(ctx context.Context, m entity.Message) error {
	attachments, err := jsonColumn(m.Attachments)
	if err != nil {
		return err
	}
	reactions, err := jsonColumn(m.Reactions)
	if err != nil {
		return err
	}
	status, err := jsonColumn(m.Status)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.SenderID, m.ChatID, m.Content, m.Pinned, nullUUID(m.ReplyToID), m.IsDeleted,
		attachments, reactions, status, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *Postgres) FindMessage(ctx context.Context, id uuid.UUID) (entity.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Message{}, apperr.ErrMessageNotFound
	}
	return m, err
}

func (r *Postgres) ListMessages(ctx context.Context, chatID uuid.UUID, before *time.Time, limit int) ([]entity.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE chat_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT NULLIF($3::int, 0)`
	var cursor sql.NullTime
	if before != nil {
		cursor = sql.NullTime{Time: *before, Valid: true}
	}
	return r.queryMessages(ctx, query, chatID, cursor, limit)
}

func (r *Postgres) ListMessagesWithAttachments(ctx context.Context, chatID uuid.UUID) ([]entity.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE chat_id = $1 AND jsonb_array_length(attachments) > 0
		ORDER BY created_at DESC`
	return r.queryMessages(ctx, query, chatID)
}

func (r *Postgres) LatestMessage(ctx context.Context, chatID uuid.UUID) (entity.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT 1`, chatID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Message{}, apperr.ErrMessageNotFound
	}
	return m, err
}

func (r *Postgres) MarkMessageDeleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = TRUE, content = '', attachments = '[]'::jsonb, updated_at = $2
		WHERE id = $1`, id, at)
	return expectRow(res, err, apperr.ErrMessageNotFound)
}

func (r *Postgres) DeleteMessagesByChat(ctx context.Context, chatID uuid.UUID) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Postgres) queryMessages(ctx context.Context, query string, args ...any) ([]entity.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []entity.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ---------------------------------------------
// Scanning helpers
// ---------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (entity.Chat, error) {
	var (
		c       entity.Chat
		name    sql.NullString
		latest  uuid.NullUUID
		admin   uuid.NullUUID
		avatarX sql.NullString
	)
	err := row.Scan(&c.ID, &name, &c.IsGroupChat, &c.Description, &c.Avatar.URL, &avatarX,
		&latest, &admin, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return entity.Chat{}, err
	}
	if name.Valid {
		c.ChatName = &name.String
	}
	c.Avatar.ExternalID = avatarX.String
	if latest.Valid {
		c.LatestMessageID = &latest.UUID
	}
	if admin.Valid {
		c.GroupAdminID = &admin.UUID
	}
	return c, nil
}

func scanMessage(row scanner) (entity.Message, error) {
	var (
		m                            entity.Message
		replyTo                      uuid.NullUUID
		attachments, reactions, stat []byte
	)
	err := row.Scan(&m.ID, &m.SenderID, &m.ChatID, &m.Content, &m.Pinned, &replyTo, &m.IsDeleted,
		&attachments, &reactions, &stat, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return entity.Message{}, err
	}
	if replyTo.Valid {
		m.ReplyToID = &replyTo.UUID
	}
	if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
		return entity.Message{}, fmt.Errorf("decode attachments: %w", err)
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return entity.Message{}, fmt.Errorf("decode reactions: %w", err)
	}
	if err := json.Unmarshal(stat, &m.Status); err != nil {
		return entity.Message{}, fmt.Errorf("decode status: %w", err)
	}
	return m, nil
}

func jsonColumn[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}

func expectRow(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func (r *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
