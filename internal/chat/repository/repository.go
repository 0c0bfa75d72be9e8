package repository

import (
	"context"
	"time"

	"clinic_chat_service/internal/chat/domain"
)

// RoomRepository definition chat room store
type RoomRepository interface {
	// CreateIfAbsent inserts room unless a room with the same id exists.
	// It never overwrites an existing room and reports whether it created one.
	CreateIfAbsent(ctx context.Context, room *domain.ChatRoom) (bool, error)
	// FindByID returns domain.ErrNotFound when the room does not exist.
	FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	// Touch sets updatedAt, and lastMessage when non-nil.
	Touch(ctx context.Context, roomID string, at time.Time, lastMessage *string) error
}

// MessageRepository definition room message store
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error
	// FindByID returns domain.ErrNotFound when the message does not exist.
	FindByID(ctx context.Context, roomID, messageID string) (*domain.Message, error)
	// ListOrdered returns every message of the room, ascending by createdAt.
	ListOrdered(ctx context.Context, roomID string) ([]domain.Message, error)
	// ReplaceContent turns the message into a text message with content,
	// only if senderID authored it. Returns domain.ErrNotFound when no such message.
	ReplaceContent(ctx context.Context, roomID, messageID, senderID, content string, at time.Time) error
	// Delete removes the message only if senderID authored it.
	// Returns domain.ErrNotFound when no such message.
	Delete(ctx context.Context, roomID, messageID, senderID string) error
	// FindUnmarked returns messages not sent by selfID whose receipt flag is false.
	FindUnmarked(ctx context.Context, roomID string, receipt domain.Receipt, selfID string) ([]domain.Message, error)
	// SetReceipt sets the flag to true if it is false and selfID is not the sender.
	// It reports whether a document changed.
	SetReceipt(ctx context.Context, roomID, messageID string, receipt domain.Receipt, selfID string) (bool, error)
}

// ChangeFeed notifies room subscribers that the message list changed.
type ChangeFeed interface {
	Publish(ctx context.Context, roomID string) error
	// Subscribe calls onChange after every Publish for roomID until the
	// returned cancel func is called. cancel is idempotent.
	Subscribe(ctx context.Context, roomID string, onChange func()) (cancel func(), err error)
}

// BlobStore stores attachment binaries.
type BlobStore interface {
	// Upload stores data under objectName and returns a retrieval URL.
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}
