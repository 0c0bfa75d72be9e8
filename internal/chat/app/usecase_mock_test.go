package app

import (
	"context"
	"time"

	"clinic_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// CreateIfAbsent moke create room
func (m *MockRoomRepository) CreateIfAbsent(ctx context.Context, room *domain.ChatRoom) (bool, error) {
	args := m.Called(ctx, room)
	return args.Bool(0), args.Error(1)
}

// FindByID moke find room by room id
func (m *MockRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// Touch moke update room summary
func (m *MockRoomRepository) Touch(ctx context.Context, roomID string, at time.Time, lastMessage *string) error {
	args := m.Called(ctx, roomID, at, lastMessage)
	return args.Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert moke insert msg
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByID moke find msg
func (m *MockMessageRepository) FindByID(ctx context.Context, roomID, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, roomID, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListOrdered moke list room msg
func (m *MockMessageRepository) ListOrdered(ctx context.Context, roomID string) ([]domain.Message, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ReplaceContent moke edit msg
func (m *MockMessageRepository) ReplaceContent(ctx context.Context, roomID, messageID, senderID, content string, at time.Time) error {
	args := m.Called(ctx, roomID, messageID, senderID, content, at)
	return args.Error(0)
}

// Delete moke delete msg
func (m *MockMessageRepository) Delete(ctx context.Context, roomID, messageID, senderID string) error {
	args := m.Called(ctx, roomID, messageID, senderID)
	return args.Error(0)
}

// FindUnmarked moke find msg without receipt
func (m *MockMessageRepository) FindUnmarked(ctx context.Context, roomID string, receipt domain.Receipt, selfID string) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, receipt, selfID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SetReceipt moke set receipt
func (m *MockMessageRepository) SetReceipt(ctx context.Context, roomID, messageID string, receipt domain.Receipt, selfID string) (bool, error) {
	args := m.Called(ctx, roomID, messageID, receipt, selfID)
	return args.Bool(0), args.Error(1)
}

// MockChangeFeed Mock ChangeFeed
type MockChangeFeed struct {
	mock.Mock
}

// Publish moke publish
func (m *MockChangeFeed) Publish(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// Subscribe moke subscribe
func (m *MockChangeFeed) Subscribe(ctx context.Context, roomID string, onChange func()) (func(), error) {
	args := m.Called(ctx, roomID, onChange)
	if args.Get(0) != nil {
		return args.Get(0).(func()), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBlobStore Mock BlobStore
type MockBlobStore struct {
	mock.Mock
}

// Upload moke upload
func (m *MockBlobStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, objectName, data, contentType)
	return args.String(0), args.Error(1)
}

// MockAudioDevice Mock AudioDevice
type MockAudioDevice struct {
	mock.Mock
}

// CheckPermission moke permission gate
func (m *MockAudioDevice) CheckPermission(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// StartCapture moke start capture
func (m *MockAudioDevice) StartCapture(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// StopCapture moke stop capture
func (m *MockAudioDevice) StopCapture(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// DiscardCapture moke discard capture
func (m *MockAudioDevice) DiscardCapture(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockAudioSender Mock AudioSender
type MockAudioSender struct {
	mock.Mock
}

// SendAudio moke send audio
func (m *MockAudioSender) SendAudio(ctx context.Context, roomID, senderID, localRef string, meta *AttachmentMeta) (string, error) {
	args := m.Called(ctx, roomID, senderID, localRef, meta)
	return args.String(0), args.Error(1)
}

// MockAudioPlayer Mock AudioPlayer
type MockAudioPlayer struct {
	mock.Mock
}

// Play moke play
func (m *MockAudioPlayer) Play(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

// Stop moke stop
func (m *MockAudioPlayer) Stop() error {
	return m.Called().Error(0)
}
