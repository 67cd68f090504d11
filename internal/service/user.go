package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

// profileCache помнит последний сохранённый профиль пользователя, чтобы не писать в БД на каждый запрос.
type profileCache struct {
	mu   sync.Mutex
	seen map[string]model.Principal
}

func (c *profileCache) unchanged(p model.Principal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.seen[p.UserID]
	return ok && prev == p
}

func (c *profileCache) remember(p model.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]model.Principal)
	}
	c.seen[p.UserID] = p
}

// SyncUser сохраняет профиль из токена (id, имя, email, аватар). Вызывается middleware авторизации.
func (s *Service) SyncUser(ctx context.Context, p model.Principal) error {
	if p.Anonymous() {
		return ErrUnauthorized
	}
	if s.profiles.unchanged(p) {
		return nil
	}
	defer logger.DeferLogDuration("service.SyncUser", time.Now())()
	u := p.ToUser()
	now := s.timestamp()
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.store.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("sync user %s: %w", p.UserID, err)
	}
	s.profiles.remember(p)
	s.publish(ctx, topic(TopicUser, p.UserID), KindUserUpdated, p.UserID)
	return nil
}

// CurrentUser — users.current: профиль вызывающего или nil.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, nil
	}
	return optional(s.store.GetUser(ctx, userID))
}

// requireMember находит участника userID в workspace; без сессии или членства возвращает ErrUnauthorized.
func requireMember(ctx context.Context, tx storage.Tx, workspaceID, userID string) (*model.Member, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	m, err := tx.GetMemberByUser(ctx, workspaceID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// requireAdmin — requireMember плюс роль admin.
func requireAdmin(ctx context.Context, tx storage.Tx, workspaceID, userID string) (*model.Member, error) {
	m, err := requireMember(ctx, tx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", ErrUnauthorized)
	}
	return m, nil
}

// memberOrNil — для запросов: участник или nil без ошибки.
func memberOrNil(ctx context.Context, tx storage.Tx, workspaceID, userID string) (*model.Member, error) {
	if userID == "" {
		return nil, nil
	}
	return optional(tx.GetMemberByUser(ctx, workspaceID, userID))
}
