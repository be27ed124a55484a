package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatd/internal/domain"
)

type ReactionRepo struct {
	db *sql.DB
}

func NewReactionRepo(db *sql.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

var _ domain.ReactionRepository = (*ReactionRepo)(nil)

// Upsert relies on the (message_id, user_id) primary key: a second reaction
// from the same user replaces the first instead of adding a row.
func (r *ReactionRepo) Upsert(ctx context.Context, reaction *domain.Reaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, reaction, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET reaction = excluded.reaction, created_at = excluded.created_at
	`, reaction.MessageID, reaction.UserID, reaction.Symbol)
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

func (r *ReactionRepo) Delete(ctx context.Context, messageID int64, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM message_reactions WHERE message_id = ? AND user_id = ?
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

func (r *ReactionRepo) ListForMessage(ctx context.Context, messageID int64) ([]*domain.Reaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, reaction, created_at
		FROM message_reactions
		WHERE message_id = ?
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	var res []*domain.Reaction
	for rows.Next() {
		reaction := &domain.Reaction{}
		if err := rows.Scan(&reaction.MessageID, &reaction.UserID, &reaction.Symbol, &reaction.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		res = append(res, reaction)
	}
	return res, rows.Err()
}
