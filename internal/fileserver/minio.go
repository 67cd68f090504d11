package fileserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/teamchat/internal/config"
	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
)

const objectPrefix = "uploads/"

// ObjectStore — картинки в S3-совместимом хранилище (MinIO). Клиент грузит файл напрямую
// по presigned PUT, читает по presigned GET; API через себя байты не пропускает.
type ObjectStore struct {
	cli    *minio.Client
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewObjectStore подключается к хранилищу и создаёт bucket, если его нет.
func NewObjectStore(ctx context.Context, cfg config.S3Config, urlTTL time.Duration) (*ObjectStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: endpoint and bucket are required")
	}
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3 bucket exists %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("s3 make bucket %s: %w", cfg.Bucket, err)
		}
		logger.Infof("s3: created bucket %s", cfg.Bucket)
	}
	return &ObjectStore{cli: cli, bucket: cfg.Bucket, ttl: urlTTL, now: time.Now}, nil
}

func objectKey(ref string) string { return objectPrefix + ref }

// NewUpload выдаёт presigned PUT на новый объект.
func (s *ObjectStore) NewUpload(ctx context.Context) (*model.UploadTarget, error) {
	ref := uuid.NewString()
	u, err := s.cli.PresignedPutObject(ctx, s.bucket, objectKey(ref), s.ttl)
	if err != nil {
		return nil, fmt.Errorf("s3 presign put: %w", err)
	}
	return &model.UploadTarget{
		URL:       u.String(),
		Method:    http.MethodPut,
		StorageID: ref,
		ExpiresAt: s.now().Add(s.ttl),
	}, nil
}

// URL — presigned GET на объект ref.
func (s *ObjectStore) URL(ctx context.Context, ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrNoObject, ref)
	}
	u, err := s.cli.PresignedGetObject(ctx, s.bucket, objectKey(ref), s.ttl, nil)
	if err != nil {
		return "", fmt.Errorf("s3 presign get: %w", err)
	}
	return u.String(), nil
}

// List перечисляет объекты под uploads/ (для janitor).
func (s *ObjectStore) List(ctx context.Context) ([]model.StoredObject, error) {
	var out []model.StoredObject
	for obj := range s.cli.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objectPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list: %w", obj.Err)
		}
		ref := strings.TrimPrefix(obj.Key, objectPrefix)
		if !refPattern.MatchString(ref) {
			continue
		}
		out = append(out, model.StoredObject{Ref: ref, Size: obj.Size, CreatedAt: obj.LastModified})
	}
	return out, nil
}

// Exists проверяет объект через StatObject: клиент мог так и не выполнить presigned PUT.
func (s *ObjectStore) Exists(ctx context.Context, ref string) (bool, error) {
	if !refPattern.MatchString(ref) {
		return false, nil
	}
	_, err := s.cli.StatObject(ctx, s.bucket, objectKey(ref), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("s3 stat %s: %w", ref, err)
}

// Delete удаляет объект ref.
func (s *ObjectStore) Delete(ctx context.Context, ref string) error {
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("%w: %q", ErrNoObject, ref)
	}
	if err := s.cli.RemoveObject(ctx, s.bucket, objectKey(ref), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 remove %s: %w", ref, err)
	}
	return nil
}
