package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chatd/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) Add(ctx context.Context, p *domain.Participant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (room_id, user_id, role, joined_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, p.RoomID, p.UserID, p.Role)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "PRIMARY KEY") {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) Remove(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM participants WHERE room_id = ? AND user_id = ?
	`, roomID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) UpdateRole(ctx context.Context, roomID, userID, role string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE participants SET role = ? WHERE room_id = ? AND user_id = ?
	`, role, roomID, userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ParticipantRepo) Get(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	p := &domain.Participant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT room_id, user_id, role, joined_at
		FROM participants
		WHERE room_id = ? AND user_id = ?
	`, roomID, userID).Scan(&p.RoomID, &p.UserID, &p.Role, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (r *ParticipantRepo) ListForRoom(ctx context.Context, roomID string) ([]*domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, user_id, role, joined_at
		FROM participants
		WHERE room_id = ?
		ORDER BY joined_at
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var res []*domain.Participant
	for rows.Next() {
		p := &domain.Participant{}
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ParticipantRepo) CountForRoom(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants WHERE room_id = ?
	`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}
