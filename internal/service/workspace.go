package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

const defaultChannelName = "general"

func normalizeWorkspaceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLen {
		return "", fmt.Errorf("%w: workspace name must be 1..%d characters", ErrInvalidInput, maxNameLen)
	}
	return name, nil
}

// CreateWorkspace создаёт workspace, участника-admin (создателя) и канал "general" одной транзакцией.
func (s *Service) CreateWorkspace(ctx context.Context, userID, name string) (string, error) {
	defer logger.DeferLogDuration("service.CreateWorkspace", time.Now())()
	if userID == "" {
		return "", ErrUnauthorized
	}
	name, err := normalizeWorkspaceName(name)
	if err != nil {
		return "", err
	}
	code, err := generateJoinCode()
	if err != nil {
		return "", fmt.Errorf("join code: %w", err)
	}
	now := s.timestamp()
	w := &model.Workspace{ID: s.newID(), Name: name, UserID: userID, JoinCode: code, CreatedAt: now}
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateWorkspace(ctx, w); err != nil {
			return err
		}
		admin := &model.Member{ID: s.newID(), UserID: userID, WorkspaceID: w.ID, Role: model.RoleAdmin, CreatedAt: now}
		if err := tx.CreateMember(ctx, admin); err != nil {
			return err
		}
		general := &model.Channel{ID: s.newID(), Name: defaultChannelName, WorkspaceID: w.ID, CreatedAt: now}
		return tx.CreateChannel(ctx, general)
	})
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	s.publish(ctx, topic(TopicUser, userID), KindWorkspaceCreated, w.ID)
	return w.ID, nil
}

// JoinWorkspace добавляет вызывающего участником, если joinCode совпадает (без учёта регистра).
func (s *Service) JoinWorkspace(ctx context.Context, userID, workspaceID, joinCode string) (string, error) {
	defer logger.DeferLogDuration("service.JoinWorkspace", time.Now())()
	if userID == "" {
		return "", ErrUnauthorized
	}
	var memberID string
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		w, err := tx.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return notFound(err, "workspace")
		}
		if !joinCodeMatches(w.JoinCode, joinCode) {
			return ErrInvalidJoinCode
		}
		if _, err := tx.GetMemberByUser(ctx, workspaceID, userID); err == nil {
			return ErrAlreadyMember
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		m := &model.Member{ID: s.newID(), UserID: userID, WorkspaceID: workspaceID, Role: model.RoleMember, CreatedAt: s.timestamp()}
		if err := tx.CreateMember(ctx, m); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return ErrAlreadyMember
			}
			return err
		}
		memberID = m.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindMemberJoined, memberID)
	s.publish(ctx, topic(TopicUser, userID), KindMemberJoined, workspaceID)
	return workspaceID, nil
}

// NewJoinCode перегенерирует код приглашения. Только admin.
func (s *Service) NewJoinCode(ctx context.Context, userID, workspaceID string) (string, error) {
	code, err := generateJoinCode()
	if err != nil {
		return "", fmt.Errorf("join code: %w", err)
	}
	var members []model.Member
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := requireAdmin(ctx, tx, workspaceID, userID); err != nil {
			return err
		}
		if err := notFound(tx.UpdateJoinCode(ctx, workspaceID, code), "workspace"); err != nil {
			return err
		}
		var err error
		members, err = tx.ListMembers(ctx, workspaceID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindJoinCodeChanged, workspaceID)
	s.publishToMembers(ctx, members, KindJoinCodeChanged, workspaceID)
	return workspaceID, nil
}

// ListWorkspaces — workspaces.get: все workspace, где вызывающий состоит участником.
func (s *Service) ListWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error) {
	if userID == "" {
		return []model.Workspace{}, nil
	}
	// Список зависит только от topic пользователя: изменения workspace рассылаются в user-topic каждого участника.
	key := "workspaces:user:" + userID
	out, err := cachedQuery(ctx, s, "workspaces.get", key, []string{topic(TopicUser, userID)}, func() ([]model.Workspace, error) {
		return s.store.ListWorkspacesByUser(ctx, userID)
	})
	if out == nil && err == nil {
		out = []model.Workspace{}
	}
	return out, err
}

// GetWorkspace — workspaces.getById: workspace или nil, если вызывающий в нём не состоит.
func (s *Service) GetWorkspace(ctx context.Context, userID, workspaceID string) (*model.Workspace, error) {
	m, err := memberOrNil(ctx, s.store, workspaceID, userID)
	if m == nil || err != nil {
		return nil, err
	}
	return optional(s.store.GetWorkspace(ctx, workspaceID))
}

// GetWorkspaceInfo — превью для экрана приглашения: имя и состоит ли вызывающий.
// Для анонимного вызова и несуществующего workspace возвращает nil.
func (s *Service) GetWorkspaceInfo(ctx context.Context, userID, workspaceID string) (*model.WorkspaceInfo, error) {
	if userID == "" {
		return nil, nil
	}
	w, err := optional(s.store.GetWorkspace(ctx, workspaceID))
	if w == nil || err != nil {
		return nil, err
	}
	m, err := memberOrNil(ctx, s.store, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	return &model.WorkspaceInfo{Name: w.Name, IsMember: m != nil}, nil
}

// UpdateWorkspace переименовывает workspace. Только admin.
func (s *Service) UpdateWorkspace(ctx context.Context, userID, workspaceID, name string) (string, error) {
	name, err := normalizeWorkspaceName(name)
	if err != nil {
		return "", err
	}
	var members []model.Member
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := requireAdmin(ctx, tx, workspaceID, userID); err != nil {
			return err
		}
		if err := notFound(tx.UpdateWorkspaceName(ctx, workspaceID, name), "workspace"); err != nil {
			return err
		}
		var err error
		members, err = tx.ListMembers(ctx, workspaceID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindWorkspaceUpdated, workspaceID)
	s.publishToMembers(ctx, members, KindWorkspaceUpdated, workspaceID)
	return workspaceID, nil
}

// RemoveWorkspace удаляет workspace со всеми участниками, каналами, переписками, сообщениями
// и реакциями. Всё или ничего: каскад идёт в одной транзакции. Только admin.
func (s *Service) RemoveWorkspace(ctx context.Context, userID, workspaceID string) (string, error) {
	defer logger.DeferLogDuration("service.RemoveWorkspace", time.Now())()
	var (
		members []model.Member
		stats   storage.CascadeStats
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := requireAdmin(ctx, tx, workspaceID, userID); err != nil {
			return err
		}
		var err error
		if members, err = tx.ListMembers(ctx, workspaceID); err != nil {
			return err
		}
		stats, err = tx.DeleteWorkspaceScope(ctx, workspaceID)
		return notFound(err, "workspace")
	})
	if err != nil {
		return "", err
	}
	logger.Infof("workspace %s removed: members=%d channels=%d conversations=%d messages=%d reactions=%d",
		workspaceID, stats.Members, stats.Channels, stats.Conversations, stats.Messages, stats.Reactions)
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindWorkspaceDeleted, workspaceID)
	s.publishToMembers(ctx, members, KindWorkspaceDeleted, workspaceID)
	return workspaceID, nil
}
