package repository

import (
	"context"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

const workspaceCols = `w.id, w.name, w.user_id, w.join_code, w.created_at`

func scanWorkspace(s interface{ Scan(dest ...any) error }, w *model.Workspace) error {
	return s.Scan(&w.ID, &w.Name, &w.UserID, &w.JoinCode, &w.CreatedAt)
}

func (s *Store) CreateWorkspace(ctx context.Context, w *model.Workspace) error {
	defer logger.DeferLogDuration("workspace.Create", time.Now())()
	_, err := s.q.Exec(ctx,
		`INSERT INTO workspaces (id, name, user_id, join_code, created_at) VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.Name, w.UserID, w.JoinCode, w.CreatedAt,
	)
	if err != nil {
		return wrapErr("workspaceRepo.Create", err)
	}
	return nil
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	defer logger.DeferLogDuration("workspace.GetByID", time.Now())()
	w := &model.Workspace{}
	row := s.q.QueryRow(ctx, `SELECT `+workspaceCols+` FROM workspaces w WHERE w.id = $1`, id)
	if err := scanWorkspace(row, w); err != nil {
		return nil, wrapErr("workspaceRepo.GetByID", err)
	}
	return w, nil
}

// ListWorkspacesByUser returns workspaces the user belongs to, in join order.
func (s *Store) ListWorkspacesByUser(ctx context.Context, userID string) ([]model.Workspace, error) {
	defer logger.DeferLogDuration("workspace.ListByUser", time.Now())()
	rows, err := s.q.Query(ctx,
		`SELECT `+workspaceCols+`
		 FROM members m
		 JOIN workspaces w ON w.id = m.workspace_id
		 WHERE m.user_id = $1
		 ORDER BY m.created_at, m.id`, userID,
	)
	if err != nil {
		return nil, wrapErr("workspaceRepo.ListByUser query", err)
	}
	defer rows.Close()

	list := make([]model.Workspace, 0, 4)
	for rows.Next() {
		var w model.Workspace
		if err := scanWorkspace(rows, &w); err != nil {
			return nil, wrapErr("workspaceRepo.ListByUser scan", err)
		}
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("workspaceRepo.ListByUser rows", err)
	}
	return list, nil
}

func (s *Store) UpdateWorkspaceName(ctx context.Context, id, name string) error {
	defer logger.DeferLogDuration("workspace.UpdateName", time.Now())()
	tag, err := s.q.Exec(ctx, `UPDATE workspaces SET name = $1 WHERE id = $2`, name, id)
	return mustAffect("workspaceRepo.UpdateName", tag, err)
}

func (s *Store) UpdateJoinCode(ctx context.Context, id, code string) error {
	defer logger.DeferLogDuration("workspace.UpdateJoinCode", time.Now())()
	tag, err := s.q.Exec(ctx, `UPDATE workspaces SET join_code = $1 WHERE id = $2`, code, id)
	return mustAffect("workspaceRepo.UpdateJoinCode", tag, err)
}

// DeleteWorkspaceScope removes the workspace with every member, channel, conversation,
// message and reaction scoped to it. Children go first so counts are exact.
func (s *Store) DeleteWorkspaceScope(ctx context.Context, id string) (storage.CascadeStats, error) {
	defer logger.DeferLogDuration("workspace.DeleteScope", time.Now())()
	var st storage.CascadeStats
	err := s.atomic(ctx, func(q querier) error {
		steps := []struct {
			sql string
			n   *int64
		}{
			{`DELETE FROM reactions WHERE workspace_id = $1`, &st.Reactions},
			{`DELETE FROM messages WHERE workspace_id = $1`, &st.Messages},
			{`DELETE FROM conversations WHERE workspace_id = $1`, &st.Conversations},
			{`DELETE FROM channels WHERE workspace_id = $1`, &st.Channels},
			{`DELETE FROM members WHERE workspace_id = $1`, &st.Members},
		}
		for _, step := range steps {
			tag, err := q.Exec(ctx, step.sql, id)
			if err != nil {
				return err
			}
			*step.n = tag.RowsAffected()
		}
		tag, err := q.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return storage.CascadeStats{}, wrapErr("workspaceRepo.DeleteScope", err)
	}
	return st, nil
}
