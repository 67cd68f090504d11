package service

import (
	"context"
	"strings"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/metrics"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// Виды событий инвалидации.
const (
	KindWorkspaceCreated    = "workspace_created"
	KindWorkspaceUpdated    = "workspace_updated"
	KindWorkspaceDeleted    = "workspace_deleted"
	KindJoinCodeChanged     = "join_code_changed"
	KindMemberJoined        = "member_joined"
	KindMemberUpdated       = "member_updated"
	KindMemberRemoved       = "member_removed"
	KindChannelCreated      = "channel_created"
	KindChannelUpdated      = "channel_updated"
	KindChannelDeleted      = "channel_deleted"
	KindConversationCreated = "conversation_created"
	KindMessageCreated      = "message_created"
	KindMessageUpdated      = "message_updated"
	KindMessageDeleted      = "message_deleted"
	KindReactionToggled     = "reaction_toggled"
	KindUserUpdated         = "user_updated"
)

// Префиксы topic. Клиенты websocket подписываются на них же.
const (
	TopicWorkspace    = "workspace"
	TopicChannel      = "channel"
	TopicConversation = "conversation"
	TopicUser         = "user"
)

func topic(kind, id string) string { return kind + ":" + id }

// ParseTopic разбирает "channel:<id>" на тип и id. Неизвестный тип или пустой id — ok=false.
func ParseTopic(t string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(t, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch kind {
	case TopicWorkspace, TopicChannel, TopicConversation, TopicUser:
		return kind, id, true
	}
	return "", "", false
}

// publish инвалидирует topic. Ошибка шины не отменяет уже зафиксированную мутацию — только лог.
func (s *Service) publish(ctx context.Context, topicName, kind, id string) {
	if s.live == nil {
		return
	}
	if err := s.live.Invalidate(ctx, storage.Event{Topic: topicName, Kind: kind, ID: id}); err != nil {
		logger.Errorf("live: invalidate %s (%s): %v", topicName, kind, err)
		return
	}
	metrics.Invalidated(kind)
}

// publishToMembers инвалидирует user-topic каждого участника (их списки workspace).
func (s *Service) publishToMembers(ctx context.Context, members []model.Member, kind, id string) {
	for _, m := range members {
		s.publish(ctx, topic(TopicUser, m.UserID), kind, id)
	}
}

// cachedQuery читает результат из кеша или вычисляет load и кладёт его с тегами topics.
// Поколения topics фиксируются до load: если за время загрузки topic инвалидирован,
// результат отдаётся вызывающему, но в кеш не попадает.
// Ошибки кеша не ломают запрос: при них результат просто вычисляется заново.
func cachedQuery[T any](ctx context.Context, s *Service, query, key string, topics []string, load func() (T, error)) (T, error) {
	if s.live == nil {
		return load()
	}
	var cached T
	hit, err := s.live.GetCached(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.CacheError(query)
		logger.Errorf("live: cache get %s: %v", key, err)
	case hit:
		metrics.CacheHit(query)
		return cached, nil
	default:
		metrics.CacheMiss(query)
	}
	snap, err := s.live.Snapshot(ctx, topics...)
	if err != nil {
		logger.Errorf("live: snapshot %s: %v", key, err)
		return load()
	}
	val, err := load()
	if err != nil {
		return val, err
	}
	stored, err := s.live.SetCached(ctx, key, val, s.cacheTTL, snap)
	switch {
	case err != nil:
		logger.Errorf("live: cache set %s: %v", key, err)
	case !stored:
		metrics.CacheStale(query)
		logger.Debugf("live: %s invalidated during load, not cached", key)
	}
	return val, nil
}
