package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// NormalizeChannelName: обрезка пробелов, нижний регистр, пробелы -> "-". Длина 1..80.
func NormalizeChannelName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "-")
	if name == "" || len([]rune(name)) > maxNameLen {
		return "", fmt.Errorf("%w: channel name must be 1..%d characters", ErrInvalidInput, maxNameLen)
	}
	return name, nil
}

// CreateChannel добавляет канал в workspace. Только admin.
func (s *Service) CreateChannel(ctx context.Context, userID, workspaceID, name string) (string, error) {
	name, err := NormalizeChannelName(name)
	if err != nil {
		return "", err
	}
	c := &model.Channel{ID: s.newID(), Name: name, WorkspaceID: workspaceID, CreatedAt: s.timestamp()}
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := requireAdmin(ctx, tx, workspaceID, userID); err != nil {
			return err
		}
		return tx.CreateChannel(ctx, c)
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindChannelCreated, c.ID)
	return c.ID, nil
}

// ListChannels — каналы workspace; пустой список, если вызывающий не участник.
func (s *Service) ListChannels(ctx context.Context, userID, workspaceID string) ([]model.Channel, error) {
	m, err := memberOrNil(ctx, s.store, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return []model.Channel{}, nil
	}
	out, err := cachedQuery(ctx, s, "channels.get", "channels:"+workspaceID, []string{topic(TopicWorkspace, workspaceID)},
		func() ([]model.Channel, error) { return s.store.ListChannels(ctx, workspaceID) })
	if out == nil && err == nil {
		out = []model.Channel{}
	}
	return out, err
}

// GetChannel — канал или nil, если его нет или вызывающий не участник workspace.
func (s *Service) GetChannel(ctx context.Context, userID, channelID string) (*model.Channel, error) {
	c, err := optional(s.store.GetChannel(ctx, channelID))
	if c == nil || err != nil {
		return nil, err
	}
	m, err := memberOrNil(ctx, s.store, c.WorkspaceID, userID)
	if m == nil || err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateChannel переименовывает канал. Только admin.
func (s *Service) UpdateChannel(ctx context.Context, userID, channelID, name string) (string, error) {
	name, err := NormalizeChannelName(name)
	if err != nil {
		return "", err
	}
	var workspaceID string
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetChannel(ctx, channelID)
		if err != nil {
			return notFound(err, "channel")
		}
		if _, err := requireAdmin(ctx, tx, c.WorkspaceID, userID); err != nil {
			return err
		}
		workspaceID = c.WorkspaceID
		return tx.UpdateChannelName(ctx, channelID, name)
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindChannelUpdated, channelID)
	s.publish(ctx, topic(TopicChannel, channelID), KindChannelUpdated, channelID)
	return channelID, nil
}

// RemoveChannel удаляет канал вместе с сообщениями и реакциями. Только admin.
func (s *Service) RemoveChannel(ctx context.Context, userID, channelID string) (string, error) {
	var (
		workspaceID string
		stats       storage.CascadeStats
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetChannel(ctx, channelID)
		if err != nil {
			return notFound(err, "channel")
		}
		if _, err := requireAdmin(ctx, tx, c.WorkspaceID, userID); err != nil {
			return err
		}
		workspaceID = c.WorkspaceID
		stats, err = tx.DeleteChannelScope(ctx, channelID)
		return err
	})
	if err != nil {
		return "", err
	}
	logger.Infof("channel %s removed: messages=%d reactions=%d", channelID, stats.Messages, stats.Reactions)
	s.publish(ctx, topic(TopicWorkspace, workspaceID), KindChannelDeleted, channelID)
	s.publish(ctx, topic(TopicChannel, channelID), KindChannelDeleted, channelID)
	return channelID, nil
}
