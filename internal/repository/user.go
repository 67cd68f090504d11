package repository

import (
	"context"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
)

// UpsertUser copies the auth provider's profile. created_at is kept on update.
func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Upsert", time.Now())()
	err := s.q.QueryRow(ctx,
		`INSERT INTO users (id, name, email, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, email = EXCLUDED.email, image = EXCLUDED.image, updated_at = EXCLUDED.updated_at
		 RETURNING created_at`,
		u.ID, u.Name, u.Email, u.Image, u.UpdatedAt,
	).Scan(&u.CreatedAt)
	if err != nil {
		return wrapErr("userRepo.Upsert", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	err := s.q.QueryRow(ctx,
		`SELECT id, name, email, image, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, wrapErr("userRepo.GetByID", err)
	}
	return u, nil
}
