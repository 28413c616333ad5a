package minio

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// registerClient connects to the object store and creates the configured bucket
// when it does not exist yet.
func registerClient(c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.Error(err))
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		zap.L().Error("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
			zap.L().Error("failed to create bucket", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
			return nil, err
		}
	}

	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return client, nil
}
