package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatd/internal/domain"
)

type BlockRepo struct {
	db *sql.DB
}

func NewBlockRepo(db *sql.DB) *BlockRepo {
	return &BlockRepo{db: db}
}

var _ domain.BlockRepository = (*BlockRepo)(nil)

// Add ignores duplicate inserts; the desired end state is already achieved.
func (r *BlockRepo) Add(ctx context.Context, blockerID, blockedID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO blocked_users (blocker_id, blocked_id) VALUES (?, ?)
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (r *BlockRepo) Remove(ctx context.Context, blockerID, blockedID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

func (r *BlockRepo) Exists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?
	`, blockerID, blockedID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("block lookup: %w", err)
	}
	return true, nil
}

func (r *BlockRepo) ListRelated(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT blocked_id FROM blocked_users WHERE blocker_id = ?
		UNION
		SELECT blocker_id FROM blocked_users WHERE blocked_id = ?
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list block relations: %w", err)
	}
	defer rows.Close()

	related := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan block relation: %w", err)
		}
		related[id] = struct{}{}
	}
	return related, rows.Err()
}

func (r *BlockRepo) ListBlockedBy(ctx context.Context, blockerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT blocked_id FROM blocked_users WHERE blocker_id = ?
	`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked id: %w", err)
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
