package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

const messageCols = `id, body, image, member_id, workspace_id, channel_id, conversation_id, parent_message_id, updated_at, created_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.Body, &m.Image, &m.MemberID, &m.WorkspaceID,
		&m.ChannelID, &m.ConversationID, &m.ParentMessageID, &m.UpdatedAt, &m.CreatedAt)
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	_, err := s.q.Exec(ctx,
		`INSERT INTO messages (`+messageCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Body, m.Image, m.MemberID, m.WorkspaceID,
		m.ChannelID, m.ConversationID, m.ParentMessageID, m.UpdatedAt, m.CreatedAt,
	)
	if err != nil {
		return wrapErr("messageRepo.Create", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.GetByID", time.Now())()
	m := &model.Message{}
	row := s.q.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		return nil, wrapErr("messageRepo.GetByID", err)
	}
	return m, nil
}

func (s *Store) UpdateMessageBody(ctx context.Context, id, body string, at time.Time) error {
	defer logger.DeferLogDuration("message.UpdateBody", time.Now())()
	tag, err := s.q.Exec(ctx, `UPDATE messages SET body = $1, updated_at = $2 WHERE id = $3`, body, at, id)
	return mustAffect("messageRepo.UpdateBody", tag, err)
}

func (s *Store) DeleteMessage(ctx context.Context, id string) (storage.CascadeStats, error) {
	defer logger.DeferLogDuration("message.Delete", time.Now())()
	var st storage.CascadeStats
	err := s.atomic(ctx, func(q querier) error {
		if err := deleteMessageTree(ctx, q, `SELECT id FROM messages WHERE id = $1`, &st, id); err != nil {
			return err
		}
		if st.Messages == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return storage.CascadeStats{}, wrapErr("messageRepo.Delete", err)
	}
	return st, nil
}

// deleteMessageTree deletes the messages selected by roots, all replies below them,
// and reactions on any of them. roots must select a single id column.
func deleteMessageTree(ctx context.Context, q querier, roots string, st *storage.CascadeStats, args ...any) error {
	tree := `WITH RECURSIVE doomed(id) AS (
		` + roots + `
		UNION
		SELECT m.id FROM messages m JOIN doomed d ON m.parent_message_id = d.id
	)`
	tag, err := q.Exec(ctx, tree+` DELETE FROM reactions WHERE message_id IN (SELECT id FROM doomed)`, args...)
	if err != nil {
		return err
	}
	st.Reactions += tag.RowsAffected()
	tag, err = q.Exec(ctx, tree+` DELETE FROM messages WHERE id IN (SELECT id FROM doomed)`, args...)
	if err != nil {
		return err
	}
	st.Messages += tag.RowsAffected()
	return nil
}

// ListMessages is a keyset page over (created_at DESC, id DESC). Container columns are
// compared with IS NOT DISTINCT FROM so a nil filter field matches only NULL.
func (s *Store) ListMessages(ctx context.Context, f storage.MessageFilter, after *storage.Cursor, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.List", time.Now())()
	var (
		afterTS *time.Time
		afterID string
	)
	if after != nil {
		ts := after.CreatedAt
		afterTS, afterID = &ts, after.ID
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE channel_id IS NOT DISTINCT FROM $1
		   AND conversation_id IS NOT DISTINCT FROM $2
		   AND parent_message_id IS NOT DISTINCT FROM $3
		   AND ($4::timestamptz IS NULL OR (created_at, id) < ($4::timestamptz, $5::text))
		 ORDER BY created_at DESC, id DESC
		 LIMIT $6`,
		f.ChannelID, f.ConversationID, f.ParentMessageID, afterTS, afterID, limit,
	)
	if err != nil {
		return nil, wrapErr("messageRepo.List query", err)
	}
	defer rows.Close()

	list := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, wrapErr("messageRepo.List scan", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("messageRepo.List rows", err)
	}
	return list, nil
}

// ThreadStats returns the reply count together with the newest reply in one round trip.
func (s *Store) ThreadStats(ctx context.Context, parentID string) (int, *model.Message, error) {
	defer logger.DeferLogDuration("message.ThreadStats", time.Now())()
	m := &model.Message{}
	var count int
	err := s.q.QueryRow(ctx,
		`SELECT `+messageCols+`, count(*) OVER ()
		 FROM messages WHERE parent_message_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, parentID,
	).Scan(&m.ID, &m.Body, &m.Image, &m.MemberID, &m.WorkspaceID,
		&m.ChannelID, &m.ConversationID, &m.ParentMessageID, &m.UpdatedAt, &m.CreatedAt, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, wrapErr("messageRepo.ThreadStats", err)
	}
	return count, m, nil
}

func (s *Store) ImageReferenced(ctx context.Context, ref string) (bool, error) {
	defer logger.DeferLogDuration("message.ImageReferenced", time.Now())()
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE image = $1)`, ref).Scan(&exists)
	if err != nil {
		return false, wrapErr("messageRepo.ImageReferenced", err)
	}
	return exists, nil
}
