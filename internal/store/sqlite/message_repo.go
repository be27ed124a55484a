package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatd/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, room_id, sender_id, kind, content, filename, created_at, edited_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, kind, content, filename, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, m.RoomID, m.SenderID, m.Kind, m.Content, m.Filename)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Kind, &m.Content, &m.Filename, &m.CreatedAt, &m.EditedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// UpdateContent touches only the row matching both message id and sender id;
// a non-matching pair is reported as ErrNotFound so callers can treat the
// edit as a silent no-op.
func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, senderID, content string) (*domain.Message, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, edited_at = CURRENT_TIMESTAMP
		WHERE id = ? AND sender_id = ?
	`, content, id, senderID)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MessageRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete reactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_hidden WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete hidden flags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListForRoom(ctx context.Context, roomID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE room_id = ? ORDER BY id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Kind, &m.Content, &m.Filename, &m.CreatedAt, &m.EditedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) HideForUser(ctx context.Context, messageID int64, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_hidden (message_id, user_id) VALUES (?, ?)
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

func (r *MessageRepo) IsHiddenFor(ctx context.Context, messageID int64, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM message_hidden WHERE message_id = ? AND user_id = ?
	`, messageID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("message hidden lookup: %w", err)
	}
	return true, nil
}
