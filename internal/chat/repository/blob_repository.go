package repository

import (
	"context"

	"clinic_chat_service/pkg/database"
)

type minioBlobStore struct {
	client database.MinIOClientRepo
}

// NewMinIOBlobStore create a BlobStore backed by MinIO
func NewMinIOBlobStore(client database.MinIOClientRepo) BlobStore {
	return &minioBlobStore{client: client}
}

// Upload 上傳後回傳可取得物件的 URL
func (s *minioBlobStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if err := s.client.PutBytes(ctx, objectName, data, contentType); err != nil {
		return "", err
	}
	return s.client.ObjectURL(ctx, objectName)
}
