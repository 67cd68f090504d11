package service

import (
	"context"
	"fmt"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// CurrentMember — участник вызывающего в workspace или nil.
func (s *Service) CurrentMember(ctx context.Context, userID, workspaceID string) (*model.Member, error) {
	return memberOrNil(ctx, s.store, workspaceID, userID)
}

// ListMembers — участники workspace с профилями. Участник без профиля пропускается.
func (s *Service) ListMembers(ctx context.Context, userID, workspaceID string) ([]model.MemberWithUser, error) {
	m, err := memberOrNil(ctx, s.store, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return []model.MemberWithUser{}, nil
	}
	out, err := cachedQuery(ctx, s, "members.get", "members:"+workspaceID, []string{topic(TopicWorkspace, workspaceID)},
		func() ([]model.MemberWithUser, error) {
			members, err := s.store.ListMembers(ctx, workspaceID)
			if err != nil {
				return nil, err
			}
			out := make([]model.MemberWithUser, 0, len(members))
			for _, mem := range members {
				u, err := optional(s.store.GetUser(ctx, mem.UserID))
				if err != nil {
					return nil, err
				}
				if u == nil {
					continue
				}
				out = append(out, model.MemberWithUser{Member: mem, User: *u})
			}
			return out, nil
		})
	if out == nil && err == nil {
		out = []model.MemberWithUser{}
	}
	return out, err
}

// GetMember — участник с профилем или nil, если вызывающий не в том же workspace.
func (s *Service) GetMember(ctx context.Context, userID, memberID string) (*model.MemberWithUser, error) {
	target, err := optional(s.store.GetMember(ctx, memberID))
	if target == nil || err != nil {
		return nil, err
	}
	caller, err := memberOrNil(ctx, s.store, target.WorkspaceID, userID)
	if caller == nil || err != nil {
		return nil, err
	}
	u, err := optional(s.store.GetUser(ctx, target.UserID))
	if u == nil || err != nil {
		return nil, err
	}
	return &model.MemberWithUser{Member: *target, User: *u}, nil
}

// UpdateMemberRole меняет роль участника. Только admin.
func (s *Service) UpdateMemberRole(ctx context.Context, userID, memberID string, role model.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	var target *model.Member
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if target, err = tx.GetMember(ctx, memberID); err != nil {
			return notFound(err, "member")
		}
		if _, err := requireAdmin(ctx, tx, target.WorkspaceID, userID); err != nil {
			return err
		}
		if target.IsAdmin() && role != model.RoleAdmin {
			if err := keepAnotherAdmin(ctx, tx, target); err != nil {
				return err
			}
		}
		return tx.UpdateMemberRole(ctx, memberID, role)
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, topic(TopicWorkspace, target.WorkspaceID), KindMemberUpdated, memberID)
	return memberID, nil
}

// keepAnotherAdmin запрещает понижать последнего admin workspace.
func keepAnotherAdmin(ctx context.Context, tx storage.Tx, target *model.Member) error {
	members, err := tx.ListMembers(ctx, target.WorkspaceID)
	if err != nil {
		return err
	}
	for i := range members {
		if members[i].ID != target.ID && members[i].IsAdmin() {
			return nil
		}
	}
	return fmt.Errorf("%w: workspace must keep an admin", ErrInvalidInput)
}

// RemoveMember удаляет участника вместе с его сообщениями, реакциями и личными переписками.
// Участника с ролью admin удалить нельзя. Участник может удалить себя, admin — любого не-admin.
func (s *Service) RemoveMember(ctx context.Context, userID, memberID string) (string, error) {
	var (
		target *model.Member
		stats  storage.CascadeStats
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if target, err = tx.GetMember(ctx, memberID); err != nil {
			return notFound(err, "member")
		}
		caller, err := requireMember(ctx, tx, target.WorkspaceID, userID)
		if err != nil {
			return err
		}
		if target.IsAdmin() {
			return fmt.Errorf("%w: admin cannot be removed", ErrUnauthorized)
		}
		if caller.ID != target.ID && !caller.IsAdmin() {
			return fmt.Errorf("%w: admin role required", ErrUnauthorized)
		}
		stats, err = tx.DeleteMemberScope(ctx, memberID)
		return err
	})
	if err != nil {
		return "", err
	}
	logger.Infof("member %s removed from %s: messages=%d reactions=%d conversations=%d",
		memberID, target.WorkspaceID, stats.Messages, stats.Reactions, stats.Conversations)
	s.publish(ctx, topic(TopicWorkspace, target.WorkspaceID), KindMemberRemoved, memberID)
	s.publish(ctx, topic(TopicUser, target.UserID), KindMemberRemoved, target.WorkspaceID)
	return memberID, nil
}
