// Package service — бизнес-логика: членство и права, workspace, каналы, личные переписки,
// сообщения с тредами и реакциями, ленты с курсорами, загрузки и инвалидация кеша запросов.
//
// Идентификатор вызывающего пользователя передаётся явно (userID); пустая строка — анонимный запрос.
// Мутации без прав возвращают ErrUnauthorized, запросы в тех же условиях отдают пустой результат.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamchat/internal/model"
	"github.com/teamchat/internal/storage"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidJoinCode = errors.New("invalid join code")
	ErrAlreadyMember   = errors.New("already a member of this workspace")
	ErrUploadsDisabled = errors.New("uploads are not configured")
)

const (
	defaultCacheTTL = 5 * time.Minute
	maxNameLen      = 80
)

// Files — хранилище вложений (локальный fileserver или MinIO).
type Files interface {
	// URL возвращает ссылку для чтения объекта ref.
	URL(ctx context.Context, ref string) (string, error)
	// NewUpload выдаёт одноразовый адрес загрузки и будущую ссылку на объект.
	NewUpload(ctx context.Context) (*model.UploadTarget, error)
	// Exists сообщает, загружен ли объект ref.
	Exists(ctx context.Context, ref string) (bool, error)
}

type Service struct {
	store    storage.Store
	live     storage.LiveStore
	files    Files
	cacheTTL time.Duration
	now      func() time.Time
	newID    func() string
	profiles profileCache
}

// New собирает сервис. files может быть nil, тогда картинки не резолвятся, а загрузка недоступна.
func New(store storage.Store, live storage.LiveStore, files Files, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Service{
		store:    store,
		live:     live,
		files:    files,
		cacheTTL: cacheTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// timestamp — текущее время с точностью Postgres (микросекунды), чтобы курсоры совпадали с БД.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// notFound переводит storage.ErrNotFound в ErrNotFound сервиса с пояснением what.
func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// optional возвращает (nil, nil) для ненайденной записи, так запросы деградируют до null.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
