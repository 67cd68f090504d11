package repository

import (
	"context"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
)

const reactionCols = `id, workspace_id, message_id, member_id, value, created_at`

func scanReaction(s interface{ Scan(dest ...any) error }, r *model.Reaction) error {
	return s.Scan(&r.ID, &r.WorkspaceID, &r.MessageID, &r.MemberID, &r.Value, &r.CreatedAt)
}

func (s *Store) CreateReaction(ctx context.Context, r *model.Reaction) error {
	defer logger.DeferLogDuration("reaction.Create", time.Now())()
	_, err := s.q.Exec(ctx,
		`INSERT INTO reactions (`+reactionCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.WorkspaceID, r.MessageID, r.MemberID, r.Value, r.CreatedAt,
	)
	if err != nil {
		return wrapErr("reactionRepo.Create", err)
	}
	return nil
}

func (s *Store) FindReaction(ctx context.Context, messageID, memberID, value string) (*model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.Find", time.Now())()
	r := &model.Reaction{}
	row := s.q.QueryRow(ctx,
		`SELECT `+reactionCols+` FROM reactions
		 WHERE message_id = $1 AND member_id = $2 AND value = $3
		 ORDER BY created_at LIMIT 1`, messageID, memberID, value)
	if err := scanReaction(row, r); err != nil {
		return nil, wrapErr("reactionRepo.Find", err)
	}
	return r, nil
}

// ListReactions returns reactions in insertion order; grouping relies on it.
func (s *Store) ListReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.ListByMessage", time.Now())()
	rows, err := s.q.Query(ctx,
		`SELECT `+reactionCols+` FROM reactions WHERE message_id = $1 ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, wrapErr("reactionRepo.ListByMessage query", err)
	}
	defer rows.Close()

	reactions := make([]model.Reaction, 0, 8)
	for rows.Next() {
		var r model.Reaction
		if err := scanReaction(rows, &r); err != nil {
			return nil, wrapErr("reactionRepo.ListByMessage scan", err)
		}
		reactions = append(reactions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("reactionRepo.ListByMessage rows", err)
	}
	return reactions, nil
}

func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("reaction.Delete", time.Now())()
	tag, err := s.q.Exec(ctx, `DELETE FROM reactions WHERE id = $1`, id)
	return mustAffect("reactionRepo.Delete", tag, err)
}
