package database

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"clinic_chat_service/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClientRepo is the subset of MinIO used by the chat blob store.
type MinIOClientRepo interface {
	PutBytes(ctx context.Context, objectName string, data []byte, contentType string) error
	ObjectURL(ctx context.Context, objectName string) (string, error)
}

// MinIOClient definition minio client
type MinIOClient struct {
	Client        *minio.Client
	BucketName    string
	publicBaseURL string
	urlExpiry     time.Duration
}

// NewMinIOConnection create a new minio connection have retry.
// RetryCount is the number of retries after the first attempt.
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var err error

	for i := 0; i <= d.RetryCount; i++ {
		var mc *MinIOClient
		mc, err = NewMinioClient(d.Endpoint, d.User, d.Password, d.BucketName, d.UseSSL)
		if err == nil {
			mc.publicBaseURL = strings.TrimRight(d.PublicBaseURL, "/")
			if d.URLExpiry > 0 {
				mc.urlExpiry = d.URLExpiry
			}
			logger.Log.Info("minIO connected", zap.String("endpoint", d.Endpoint), zap.Int("attempt", i+1))
			return mc, nil
		}

		logger.Log.Warn("minIO connect failed, retrying...",
			zap.String("endpoint", d.Endpoint),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		if i < d.RetryCount {
			time.Sleep(d.RetryInterval)
		}
	}

	return nil, fmt.Errorf("failed to connect to MinIO after retries: %w", err)
}

// NewMinioClient create a new minio
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	minioClient, err := minio.New(endpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: useSSL,
		})
	if err != nil {
		return nil, fmt.Errorf("init MinIO: %w", err)
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket [%s]: %w", bucketName, err)
	}

	// bucket 不存在則建立
	if !exists {
		if err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket [%s]: %w", bucketName, err)
		}
		logger.Log.Info("bucket created", zap.String("bucket", bucketName))
	}

	return &MinIOClient{
		Client:     minioClient,
		BucketName: bucketName,
		urlExpiry:  7 * 24 * time.Hour,
	}, nil
}

// PutBytes uploads an in-memory object.
func (m *MinIOClient) PutBytes(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// ObjectURL returns the retrieval URL of objectName: a public URL when a
// base URL is configured, a presigned GET otherwise.
func (m *MinIOClient) ObjectURL(ctx context.Context, objectName string) (string, error) {
	if m.publicBaseURL != "" {
		return m.publicBaseURL + "/" + m.BucketName + "/" + objectName, nil
	}
	return m.PresignGetURL(ctx, objectName, m.urlExpiry)
}

// PresignGetURL 生成一個 Presigned URL 用來獲取指定的 object
func (m *MinIOClient) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := m.Client.PresignedGetObject(ctx, m.BucketName, objectName, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign [%s]: %w", objectName, err)
	}
	return presignedURL.String(), nil
}
