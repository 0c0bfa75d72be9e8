package app

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/internal/chat/repository"
	errprocess "clinic_chat_service/pkg/err"
	"clinic_chat_service/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// readLocal 讀取本機檔案, 測試時可替換
var readLocal = os.ReadFile

// AttachmentMeta optional information the caller already knows about a local file
type AttachmentMeta struct {
	FileName string
	MimeType string
	// Duration 錄音長度, 只用於 audio
	Duration time.Duration
}

// UploadResult where an attachment ended up
type UploadResult struct {
	URL        string
	ObjectName string
	FileName   string
	Size       int64
	MimeType   string
}

// AttachmentUseCase uploads message attachments to the blob store
type AttachmentUseCase struct {
	blobs    repository.BlobStore
	maxBytes int64
}

// NewAttachmentUseCase init attachment use case, maxBytes <= 0 disables the size check
func NewAttachmentUseCase(blobs repository.BlobStore, maxBytes int64) *AttachmentUseCase {
	return &AttachmentUseCase{
		blobs:    blobs,
		maxBytes: maxBytes,
	}
}

// UploadAndLink uploads the file at localRef and returns the URL a message
// of the given kind should reference. Every failure is domain.ErrUploadFailure.
func (uc *AttachmentUseCase) UploadAndLink(ctx context.Context, roomID string, kind domain.MessageType, localRef string, meta *AttachmentMeta) (*UploadResult, error) {
	if !kind.IsAttachment() {
		return nil, errprocess.Warn(domain.ErrInvalidInput, "attachment kind[%s]", kind)
	}
	if meta == nil {
		meta = &AttachmentMeta{}
	}

	data, err := readLocal(localRef)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrUploadFailure, err, "read local file[%s]", localRef)
	}
	size := int64(len(data))
	if size == 0 {
		return nil, errprocess.Warn(domain.ErrUploadFailure, "empty file[%s]", localRef)
	}
	if uc.maxBytes > 0 && size > uc.maxBytes {
		return nil, errprocess.Warn(domain.ErrUploadFailure, "file[%s] size %d exceeds %d", localRef, size, uc.maxBytes)
	}

	detected := mimetype.Detect(data)
	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = detected.String()
	}
	fileName := meta.FileName
	if fileName == "" {
		fileName = filepath.Base(localRef)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = detected.Extension()
	}

	// chats/<roomID>/<kind>/<uuid><ext>
	objectName := path.Join("chats", roomID, string(kind), uuid.New().String()+ext)
	url, err := uc.blobs.Upload(ctx, objectName, data, mimeType)
	if err != nil {
		return nil, errprocess.Wrap(domain.ErrUploadFailure, err, "upload object[%s]", objectName)
	}

	logger.Log.Debug("attachment uploaded",
		zap.String("room_id", roomID),
		zap.String("object", objectName),
		zap.Int64("size", size),
		zap.String("mime", mimeType),
	)
	return &UploadResult{
		URL:        url,
		ObjectName: objectName,
		FileName:   fileName,
		Size:       size,
		MimeType:   mimeType,
	}, nil
}
