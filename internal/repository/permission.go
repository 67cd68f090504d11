package repository

import (
	"context"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

const memberCols = `id, user_id, workspace_id, role, created_at`

func scanMember(s interface{ Scan(dest ...any) error }, m *model.Member) error {
	return s.Scan(&m.ID, &m.UserID, &m.WorkspaceID, &m.Role, &m.CreatedAt)
}

// CreateMember inserts a membership; a second membership for the same user in the
// workspace yields storage.ErrConflict without aborting the surrounding transaction.
func (s *Store) CreateMember(ctx context.Context, m *model.Member) error {
	defer logger.DeferLogDuration("member.Create", time.Now())()
	tag, err := s.q.Exec(ctx,
		`INSERT INTO members (id, user_id, workspace_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workspace_id, user_id) DO NOTHING`,
		m.ID, m.UserID, m.WorkspaceID, m.Role, m.CreatedAt,
	)
	if err != nil {
		return wrapErr("memberRepo.Create", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("memberRepo.Create", storage.ErrConflict)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*model.Member, error) {
	defer logger.DeferLogDuration("member.GetByID", time.Now())()
	m := &model.Member{}
	row := s.q.QueryRow(ctx, `SELECT `+memberCols+` FROM members WHERE id = $1`, id)
	if err := scanMember(row, m); err != nil {
		return nil, wrapErr("memberRepo.GetByID", err)
	}
	return m, nil
}

func (s *Store) GetMemberByUser(ctx context.Context, workspaceID, userID string) (*model.Member, error) {
	defer logger.DeferLogDuration("member.GetByUser", time.Now())()
	m := &model.Member{}
	row := s.q.QueryRow(ctx,
		`SELECT `+memberCols+` FROM members WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err := scanMember(row, m); err != nil {
		return nil, wrapErr("memberRepo.GetByUser", err)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, workspaceID string) ([]model.Member, error) {
	defer logger.DeferLogDuration("member.List", time.Now())()
	rows, err := s.q.Query(ctx,
		`SELECT `+memberCols+` FROM members WHERE workspace_id = $1 ORDER BY created_at, id`, workspaceID)
	if err != nil {
		return nil, wrapErr("memberRepo.List query", err)
	}
	defer rows.Close()

	list := make([]model.Member, 0, 16)
	for rows.Next() {
		var m model.Member
		if err := scanMember(rows, &m); err != nil {
			return nil, wrapErr("memberRepo.List scan", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("memberRepo.List rows", err)
	}
	return list, nil
}

func (s *Store) UpdateMemberRole(ctx context.Context, id string, role model.Role) error {
	defer logger.DeferLogDuration("member.UpdateRole", time.Now())()
	tag, err := s.q.Exec(ctx, `UPDATE members SET role = $1 WHERE id = $2`, role, id)
	return mustAffect("memberRepo.UpdateRole", tag, err)
}

// DeleteMemberScope removes the member, their messages (with replies), their reactions
// and every direct conversation they take part in.
func (s *Store) DeleteMemberScope(ctx context.Context, id string) (storage.CascadeStats, error) {
	defer logger.DeferLogDuration("member.DeleteScope", time.Now())()
	var st storage.CascadeStats
	err := s.atomic(ctx, func(q querier) error {
		roots := `SELECT id FROM messages
			WHERE member_id = $1
			   OR conversation_id IN (SELECT id FROM conversations WHERE member_one_id = $1 OR member_two_id = $1)`
		if err := deleteMessageTree(ctx, q, roots, &st, id); err != nil {
			return err
		}
		tag, err := q.Exec(ctx, `DELETE FROM reactions WHERE member_id = $1`, id)
		if err != nil {
			return err
		}
		st.Reactions += tag.RowsAffected()
		tag, err = q.Exec(ctx, `DELETE FROM conversations WHERE member_one_id = $1 OR member_two_id = $1`, id)
		if err != nil {
			return err
		}
		st.Conversations = tag.RowsAffected()
		tag, err = q.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		st.Members = 1
		return nil
	})
	if err != nil {
		return storage.CascadeStats{}, wrapErr("memberRepo.DeleteScope", err)
	}
	return st, nil
}
