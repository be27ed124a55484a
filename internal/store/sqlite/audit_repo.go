package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatd/internal/domain"
)

type AuditLogRepo struct {
	db *sql.DB
}

func NewAuditLogRepo(db *sql.DB) *AuditLogRepo {
	return &AuditLogRepo{db: db}
}

var _ domain.AuditLogRepository = (*AuditLogRepo)(nil)

func (r *AuditLogRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO group_logs (room_id, action, details, timestamp)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, e.RoomID, e.Action, e.Details)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *AuditLogRepo) ListForRoom(ctx context.Context, roomID string) ([]*domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, action, details, timestamp
		FROM group_logs
		WHERE room_id = ?
		ORDER BY id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var res []*domain.AuditEntry
	for rows.Next() {
		e := &domain.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
