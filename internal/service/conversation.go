package service

import (
	"context"
	"errors"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// CreateOrGetConversation возвращает личную переписку вызывающего с memberID, создавая её при первом обращении.
// Пара неупорядоченная: (A,B) и (B,A) дают одну запись. Одновременное создание обеими сторонами
// упирается в уникальный индекс пары; проигравший перечитывает запись победителя.
func (s *Service) CreateOrGetConversation(ctx context.Context, userID, workspaceID, memberID string) (string, error) {
	defer logger.DeferLogDuration("service.CreateOrGetConversation", time.Now())()
	var (
		id      string
		created bool
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		caller, err := requireMember(ctx, tx, workspaceID, userID)
		if err != nil {
			return err
		}
		other, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return notFound(err, "member")
		}
		if other.WorkspaceID != workspaceID {
			return notFound(storage.ErrNotFound, "member")
		}
		existing, err := tx.FindConversation(ctx, workspaceID, caller.ID, other.ID)
		if err == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		c := &model.Conversation{
			ID:          s.newID(),
			WorkspaceID: workspaceID,
			MemberOneID: caller.ID,
			MemberTwoID: other.ID,
			CreatedAt:   s.timestamp(),
		}
		err = tx.CreateConversation(ctx, c)
		if errors.Is(err, storage.ErrConflict) {
			existing, err := tx.FindConversation(ctx, workspaceID, caller.ID, other.ID)
			if err != nil {
				return err
			}
			id = existing.ID
			return nil
		}
		if err != nil {
			return err
		}
		id, created = c.ID, true
		return nil
	})
	if err != nil {
		return "", err
	}
	if created {
		s.publish(ctx, topic(TopicWorkspace, workspaceID), KindConversationCreated, id)
	}
	return id, nil
}

// conversationFor — переписка, доступная участнику: только её двум сторонам.
func conversationFor(ctx context.Context, tx storage.Tx, conversationID string, member *model.Member) (*model.Conversation, error) {
	c, err := tx.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	if c.WorkspaceID != member.WorkspaceID {
		return nil, notFound(storage.ErrNotFound, "conversation")
	}
	if !c.Involves(member.ID) {
		return nil, ErrUnauthorized
	}
	return c, nil
}
