package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
)

const MaxImageSize = 5 << 20

var (
	ErrNotImage = errors.New("file is not an image")
	ErrTooLarge = errors.New("file exceeds 5 MiB")
)

var Module = fx.Module("media.service",
	fx.Provide(NewService),
)

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type Service struct {
	store     objectStore
	bucket    string
	publicURL string
	now       func() time.Time
}

type ServiceParams struct {
	fx.In
	Minio  *minio.Client
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return newService(p.Minio, p.Config)
}

func newService(store objectStore, cfg *config.Config) *Service {
	publicURL := cfg.Minio.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.Minio.Secure {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Minio.Endpoint, cfg.Minio.BucketName)
	}

	return &Service{
		store:     store,
		bucket:    cfg.Minio.BucketName,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// Upload stores an image under folder/<userID>_<unix ms>_<name>.
func (s *Service) Upload(ctx context.Context, userID, folder string, file *multipart.FileHeader) (*Object, error) {
	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errutil.UnsupportedMediaType("El archivo debe ser una imagen", ErrNotImage)
	}
	if file.Size > MaxImageSize {
		return nil, errutil.BadRequest("La imagen debe ser menor a 5MB", ErrTooLarge)
	}

	src, err := file.Open()
	if err != nil {
		return nil, errutil.BadRequest("unreadable file", err)
	}
	defer src.Close()

	key := s.Key(userID, folder, file.Filename)
	if _, err := s.store.PutObject(ctx, s.bucket, key, src, file.Size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		logger.FromContext(ctx).Error("failed to upload object", zap.String("key", key), zap.Error(err))
		return nil, errutil.Internal("failed to store image", err)
	}

	return &Object{Key: key, URL: s.URL(key)}, nil
}

func (s *Service) Key(userID, folder, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	return fmt.Sprintf("%s/%s_%d_%s", strings.Trim(folder, "/"), userID, s.now().UnixMilli(), name)
}

func (s *Service) URL(key string) string {
	return s.publicURL + "/" + (&url.URL{Path: key}).EscapedPath()
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.store.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errutil.Internal("failed to delete image", err)
	}
	return nil
}
