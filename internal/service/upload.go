package service

import (
	"context"
	"fmt"

	"github.com/teamchat/internal/model"
)

// GenerateUploadURL — upload.generateUploadUrl: одноразовый адрес для загрузки картинки.
// Полученный StorageID передаётся в messages.create как image.
func (s *Service) GenerateUploadURL(ctx context.Context, userID string) (*model.UploadTarget, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if s.files == nil {
		return nil, ErrUploadsDisabled
	}
	t, err := s.files.NewUpload(ctx)
	if err != nil {
		return nil, fmt.Errorf("new upload: %w", err)
	}
	return t, nil
}

// checkImage проверяет, что картинка ref действительно загружена.
func (s *Service) checkImage(ctx context.Context, ref string) error {
	if s.files == nil {
		return ErrUploadsDisabled
	}
	ok, err := s.files.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check image: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: image %q was not uploaded", ErrInvalidInput, ref)
	}
	return nil
}
