package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chatd/internal/domain"
)

type RoomRepo struct {
	db *sql.DB
}

func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

var _ domain.RoomRepository = (*RoomRepo)(nil)

const roomColumns = `id, kind, name, avatar, pair_key, created_by, created_at`

// Create inserts the room and its participant rows in one transaction. A
// private room colliding on its pair key surfaces as ErrConflict so callers
// can re-resolve the existing room.
func (r *RoomRepo) Create(ctx context.Context, room *domain.Room, participants []*domain.Participant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (id, kind, name, avatar, pair_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, room.ID, room.Kind, room.Name, room.Avatar, room.PairKey, room.CreatedBy); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert room: %w", err)
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (room_id, user_id, role, joined_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		`, p.RoomID, p.UserID, p.Role); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *RoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id).Scan(
		&room.ID, &room.Kind, &room.Name, &room.Avatar, &room.PairKey, &room.CreatedBy, &room.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

func (r *RoomRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.kind, r.name, r.avatar, r.pair_key, r.created_by, r.created_at
		FROM rooms r
		JOIN participants p ON p.room_id = r.id
		WHERE p.user_id = ?
		ORDER BY r.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var res []*domain.Room
	for rows.Next() {
		room := &domain.Room{}
		if err := rows.Scan(&room.ID, &room.Kind, &room.Name, &room.Avatar, &room.PairKey, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		res = append(res, room)
	}
	return res, rows.Err()
}

// FindPrivateBetween resolves the pair through the normalized pair key, so
// the lookup is exact even when both arguments are the same user.
func (r *RoomRepo) FindPrivateBetween(ctx context.Context, userA, userB string) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE kind = 'private' AND pair_key = ?
	`, domain.PrivatePairKey(userA, userB)).Scan(
		&room.ID, &room.Kind, &room.Name, &room.Avatar, &room.PairKey, &room.CreatedBy, &room.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find private room: %w", err)
	}
	return room, nil
}

func (r *RoomRepo) UpdateName(ctx context.Context, id string, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update room name: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RoomRepo) HideForUser(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO room_hidden (room_id, user_id) VALUES (?, ?)
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("hide room: %w", err)
	}
	return nil
}

func (r *RoomRepo) UnhideForUser(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM room_hidden WHERE room_id = ? AND user_id = ?
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("unhide room: %w", err)
	}
	return nil
}

func (r *RoomRepo) ClearHidden(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM room_hidden WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("clear hidden: %w", err)
	}
	return nil
}

func (r *RoomRepo) IsHiddenFor(ctx context.Context, roomID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM room_hidden WHERE room_id = ? AND user_id = ?
	`, roomID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("room hidden lookup: %w", err)
	}
	return true, nil
}

func (r *RoomRepo) HasHidden(ctx context.Context, roomID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM room_hidden WHERE room_id = ? LIMIT 1
	`, roomID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("room hidden lookup: %w", err)
	}
	return true, nil
}

// DeleteCascade removes the room and everything hanging off it in one
// transaction; partial application on failure would corrupt room state.
func (r *RoomRepo) DeleteCascade(ctx context.Context, roomID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM message_reactions WHERE message_id IN (SELECT id FROM messages WHERE room_id = ?)`,
		`DELETE FROM message_hidden WHERE message_id IN (SELECT id FROM messages WHERE room_id = ?)`,
		`DELETE FROM messages WHERE room_id = ?`,
		`DELETE FROM participants WHERE room_id = ?`,
		`DELETE FROM group_logs WHERE room_id = ?`,
		`DELETE FROM room_hidden WHERE room_id = ?`,
		`DELETE FROM rooms WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, roomID); err != nil {
			return fmt.Errorf("cascade delete room: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
