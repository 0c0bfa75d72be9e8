package app

import (
	"context"
	"strings"
	"sync"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/internal/chat/repository"
	errprocess "clinic_chat_service/pkg/err"
	"clinic_chat_service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Unsubscribe stops snapshot delivery. Safe to call more than once.
type Unsubscribe func()

// MessageUseCase 聊天室訊息的寫入與即時訂閱
type MessageUseCase struct {
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	feed     repository.ChangeFeed
	uploader *AttachmentUseCase
	validate *validator.Validate
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	feed repository.ChangeFeed,
	uploader *AttachmentUseCase,
) *MessageUseCase {
	return &MessageUseCase{
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		feed:     feed,
		uploader: uploader,
		validate: validator.New(),
	}
}

// Subscribe delivers the room's full message list, ascending by createdAt,
// once right away and again after every change of the room.
// Changes arriving while a snapshot is being fetched are coalesced into one
// re-fetch; onSnapshot is never called concurrently with itself.
func (uc *MessageUseCase) Subscribe(ctx context.Context, roomID string, onSnapshot func([]domain.Message)) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)

	pending := make(chan struct{}, 1)
	pending <- struct{}{} // 第一次 snapshot

	stopFeed, err := uc.feed.Subscribe(subCtx, roomID, func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		logger.Log.Error("subscribe room change feed", zap.String("room_id", roomID), zap.Error(err))
		return nil, err
	}

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case <-pending:
			}

			msgs, err := uc.msgRepo.ListOrdered(subCtx, roomID)
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				logger.Log.Warn("list room messages", zap.String("room_id", roomID), zap.Error(err))
				continue
			}
			onSnapshot(msgs)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopFeed()
			cancel()
		})
	}, nil
}

// SendText append a text message
func (uc *MessageUseCase) SendText(ctx context.Context, roomID, senderID, content string) (string, error) {
	if err := uc.validate.Var(strings.TrimSpace(content), "required"); err != nil {
		return "", errprocess.Warn(domain.ErrInvalidInput, "empty text message room[%s]", roomID)
	}
	return uc.append(ctx, roomID, senderID, domain.TextPayload{Content: content})
}

// SendImage uploads the local image then appends an image message
func (uc *MessageUseCase) SendImage(ctx context.Context, roomID, senderID, localRef string, meta *AttachmentMeta) (string, error) {
	res, err := uc.upload(ctx, roomID, senderID, domain.MessageTypeImage, localRef, meta)
	if err != nil {
		return "", err
	}
	return uc.append(ctx, roomID, senderID, domain.ImagePayload{ImageURL: res.URL})
}

// SendAudio uploads the local recording then appends an audio message
func (uc *MessageUseCase) SendAudio(ctx context.Context, roomID, senderID, localRef string, meta *AttachmentMeta) (string, error) {
	res, err := uc.upload(ctx, roomID, senderID, domain.MessageTypeAudio, localRef, meta)
	if err != nil {
		return "", err
	}
	payload := domain.AudioPayload{AudioURL: res.URL}
	if meta != nil {
		payload.Duration = meta.Duration
	}
	return uc.append(ctx, roomID, senderID, payload)
}

// SendFile uploads the local document then appends a file message
func (uc *MessageUseCase) SendFile(ctx context.Context, roomID, senderID, localRef string, meta *AttachmentMeta) (string, error) {
	res, err := uc.upload(ctx, roomID, senderID, domain.MessageTypeFile, localRef, meta)
	if err != nil {
		return "", err
	}
	return uc.append(ctx, roomID, senderID, domain.FilePayload{
		FileURL:  res.URL,
		FileName: res.FileName,
		FileSize: res.Size,
		MimeType: res.MimeType,
	})
}

func (uc *MessageUseCase) upload(ctx context.Context, roomID, senderID string, kind domain.MessageType, localRef string, meta *AttachmentMeta) (*UploadResult, error) {
	if senderID == "" {
		return nil, errprocess.Warn(domain.ErrIdentityMissing, "send %s room[%s] without sender", kind, roomID)
	}
	return uc.uploader.UploadAndLink(ctx, roomID, kind, localRef, meta)
}

// append 寫入訊息, 更新聊天室摘要, 通知訂閱者
func (uc *MessageUseCase) append(ctx context.Context, roomID, senderID string, payload domain.Payload) (string, error) {
	if senderID == "" {
		return "", errprocess.Warn(domain.ErrIdentityMissing, "send %s room[%s] without sender", payload.Type(), roomID)
	}

	now := timeNow().UTC()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		return "", errprocess.Wrap(domain.ErrWriteFailure, err, "insert %s message room[%s]", payload.Type(), roomID)
	}

	// 摘要更新失敗不影響已寫入的訊息
	summary := payload.Summary()
	if err := uc.roomRepo.Touch(ctx, roomID, now, &summary); err != nil {
		logger.Log.Warn("touch room summary", zap.String("room_id", roomID), zap.String("message_id", msg.ID), zap.Error(err))
	}

	publishChange(ctx, uc.feed, roomID)
	return msg.ID, nil
}

func publishChange(ctx context.Context, feed repository.ChangeFeed, roomID string) {
	if err := feed.Publish(ctx, roomID); err != nil {
		logger.Log.Warn("publish room change", zap.String("room_id", roomID), zap.Error(err))
	}
}
