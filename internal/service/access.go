package service

import (
	"context"

	"github.com/teamchat/internal/model"
)

// CanSubscribe решает, может ли userID получать события topic: user — только свои,
// workspace и channel — участники workspace, conversation — её две стороны.
func (s *Service) CanSubscribe(ctx context.Context, userID, t string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	kind, id, ok := ParseTopic(t)
	if !ok {
		return false, nil
	}
	var workspaceID string
	var conv *model.Conversation
	switch kind {
	case TopicUser:
		return id == userID, nil
	case TopicWorkspace:
		workspaceID = id
	case TopicChannel:
		c, err := optional(s.store.GetChannel(ctx, id))
		if c == nil || err != nil {
			return false, err
		}
		workspaceID = c.WorkspaceID
	case TopicConversation:
		c, err := optional(s.store.GetConversation(ctx, id))
		if c == nil || err != nil {
			return false, err
		}
		conv = c
		workspaceID = c.WorkspaceID
	}
	m, err := memberOrNil(ctx, s.store, workspaceID, userID)
	if m == nil || err != nil {
		return false, err
	}
	if conv != nil {
		return conv.Involves(m.ID), nil
	}
	return true, nil
}
