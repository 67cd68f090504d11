package repository

import (
	"context"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

func (s *Store) CreateChannel(ctx context.Context, c *model.Channel) error {
	defer logger.DeferLogDuration("channel.Create", time.Now())()
	_, err := s.q.Exec(ctx,
		`INSERT INTO channels (id, name, workspace_id, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.WorkspaceID, c.CreatedAt,
	)
	if err != nil {
		return wrapErr("channelRepo.Create", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	defer logger.DeferLogDuration("channel.GetByID", time.Now())()
	c := &model.Channel{}
	err := s.q.QueryRow(ctx,
		`SELECT id, name, workspace_id, created_at FROM channels WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.WorkspaceID, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr("channelRepo.GetByID", err)
	}
	return c, nil
}

func (s *Store) ListChannels(ctx context.Context, workspaceID string) ([]model.Channel, error) {
	defer logger.DeferLogDuration("channel.List", time.Now())()
	rows, err := s.q.Query(ctx,
		`SELECT id, name, workspace_id, created_at FROM channels
		 WHERE workspace_id = $1 ORDER BY created_at, id`, workspaceID)
	if err != nil {
		return nil, wrapErr("channelRepo.List query", err)
	}
	defer rows.Close()

	list := make([]model.Channel, 0, 8)
	for rows.Next() {
		var c model.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.WorkspaceID, &c.CreatedAt); err != nil {
			return nil, wrapErr("channelRepo.List scan", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("channelRepo.List rows", err)
	}
	return list, nil
}

func (s *Store) UpdateChannelName(ctx context.Context, id, name string) error {
	defer logger.DeferLogDuration("channel.UpdateName", time.Now())()
	tag, err := s.q.Exec(ctx, `UPDATE channels SET name = $1 WHERE id = $2`, name, id)
	return mustAffect("channelRepo.UpdateName", tag, err)
}

func (s *Store) DeleteChannelScope(ctx context.Context, id string) (storage.CascadeStats, error) {
	defer logger.DeferLogDuration("channel.DeleteScope", time.Now())()
	var st storage.CascadeStats
	err := s.atomic(ctx, func(q querier) error {
		if err := deleteMessageTree(ctx, q, `SELECT id FROM messages WHERE channel_id = $1`, &st, id); err != nil {
			return err
		}
		tag, err := q.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		st.Channels = 1
		return nil
	})
	if err != nil {
		return storage.CascadeStats{}, wrapErr("channelRepo.DeleteScope", err)
	}
	return st, nil
}

const conversationCols = `id, workspace_id, member_one_id, member_two_id, created_at`

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.WorkspaceID, &c.MemberOneID, &c.MemberTwoID, &c.CreatedAt)
}

// CreateConversation relies on the unique index over the unordered member pair.
// A concurrent insert for the same pair yields storage.ErrConflict.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	defer logger.DeferLogDuration("conversation.Create", time.Now())()
	tag, err := s.q.Exec(ctx,
		`INSERT INTO conversations (id, workspace_id, member_one_id, member_two_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workspace_id, LEAST(member_one_id, member_two_id), GREATEST(member_one_id, member_two_id)) DO NOTHING`,
		c.ID, c.WorkspaceID, c.MemberOneID, c.MemberTwoID, c.CreatedAt,
	)
	if err != nil {
		return wrapErr("conversationRepo.Create", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("conversationRepo.Create", storage.ErrConflict)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.GetByID", time.Now())()
	c := &model.Conversation{}
	row := s.q.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		return nil, wrapErr("conversationRepo.GetByID", err)
	}
	return c, nil
}

// FindConversation looks the pair up in either order.
func (s *Store) FindConversation(ctx context.Context, workspaceID, memberA, memberB string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.Find", time.Now())()
	c := &model.Conversation{}
	row := s.q.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE workspace_id = $1
		   AND LEAST(member_one_id, member_two_id) = LEAST($2::text, $3::text)
		   AND GREATEST(member_one_id, member_two_id) = GREATEST($2::text, $3::text)`,
		workspaceID, memberA, memberB)
	if err := scanConversation(row, c); err != nil {
		return nil, wrapErr("conversationRepo.Find", err)
	}
	return c, nil
}
