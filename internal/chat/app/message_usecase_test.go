package app

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/internal/chat/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// snapshotRecorder 收集 Subscribe 推送的 snapshot
type snapshotRecorder struct {
	ch chan []domain.Message
}

func newSnapshotRecorder() *snapshotRecorder {
	return &snapshotRecorder{ch: make(chan []domain.Message, 64)}
}

func (r *snapshotRecorder) onSnapshot(msgs []domain.Message) { r.ch <- msgs }

// waitFor 等到符合條件的 snapshot
func (r *snapshotRecorder) waitFor(t *testing.T, cond func([]domain.Message) bool) []domain.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msgs := <-r.ch:
			if cond(msgs) {
				return msgs
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}
}

func newMemoryMessageUseCase(store *repository.MemoryStore) *MessageUseCase {
	return NewMessageUseCase(store, store.Messages(), store, NewAttachmentUseCase(store, 0))
}

// 測試 MessageUseCase.SendText 寫入, 更新摘要, 通知
func TestMessageUseCase_SendText(t *testing.T) {
	ctx := context.Background()
	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockFeed := new(MockChangeFeed)

	mockMsgRepo.On("Insert", ctx, mock.MatchedBy(func(m *domain.Message) bool {
		text, ok := m.Text()
		return ok && text == "Hello" && m.SenderID == "p7" && m.RoomID == "r1" && !m.Delivered && !m.IsRead
	})).Return(nil)
	mockRoomRepo.On("Touch", ctx, "r1", mock.Anything, mock.MatchedBy(func(s *string) bool {
		return s != nil && *s == "Hello"
	})).Return(nil)
	mockFeed.On("Publish", ctx, "r1").Return(nil)

	uc := NewMessageUseCase(mockRoomRepo, mockMsgRepo, mockFeed, nil)
	msgID, err := uc.SendText(ctx, "r1", "p7", "Hello")

	assert.NoError(t, err)
	assert.NotEmpty(t, msgID)
	mockRoomRepo.AssertExpectations(t)
	mockMsgRepo.AssertExpectations(t)
	mockFeed.AssertExpectations(t)
}

func TestMessageUseCase_SendTextRejectsEmpty(t *testing.T) {
	mockMsgRepo := new(MockMessageRepository)
	uc := NewMessageUseCase(new(MockRoomRepository), mockMsgRepo, new(MockChangeFeed), nil)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := uc.SendText(context.Background(), "r1", "p7", content)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	_, err := uc.SendText(context.Background(), "r1", "", "Hello")
	assert.ErrorIs(t, err, domain.ErrIdentityMissing)

	mockMsgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

// 寫入失敗不更新聊天室摘要
func TestMessageUseCase_SendTextWriteFailure(t *testing.T) {
	ctx := context.Background()
	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockFeed := new(MockChangeFeed)
	mockMsgRepo.On("Insert", ctx, mock.Anything).Return(errors.New("write rejected"))

	uc := NewMessageUseCase(mockRoomRepo, mockMsgRepo, mockFeed, nil)
	_, err := uc.SendText(ctx, "r1", "p7", "Hello")

	assert.ErrorIs(t, err, domain.ErrWriteFailure)
	mockRoomRepo.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockFeed.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

// 摘要更新與通知失敗不影響已寫入的訊息
func TestMessageUseCase_SendTextSummaryFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	mockRoomRepo := new(MockRoomRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockFeed := new(MockChangeFeed)
	mockMsgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	mockRoomRepo.On("Touch", ctx, "r1", mock.Anything, mock.Anything).Return(errors.New("timeout"))
	mockFeed.On("Publish", ctx, "r1").Return(errors.New("redis down"))

	msgID, err := NewMessageUseCase(mockRoomRepo, mockMsgRepo, mockFeed, nil).SendText(ctx, "r1", "p7", "Hello")
	assert.NoError(t, err)
	assert.NotEmpty(t, msgID)
}

func TestMessageUseCase_SendAttachments(t *testing.T) {
	ctx := context.Background()
	stubLocalFiles(t, map[string][]byte{
		"/tmp/img":  pngHeader,
		"/tmp/doc":  []byte("%PDF-1.4 report"),
		"/tmp/note": []byte("fake audio"),
	})
	store := repository.NewMemoryStore("mem://blobs")
	uc := newMemoryMessageUseCase(store)

	_, err := uc.SendImage(ctx, "r1", "u1", "/tmp/img", nil)
	require.NoError(t, err)
	_, err = uc.SendFile(ctx, "r1", "u1", "/tmp/doc", &AttachmentMeta{FileName: "report.pdf"})
	require.NoError(t, err)
	_, err = uc.SendAudio(ctx, "r1", "u1", "/tmp/note", &AttachmentMeta{Duration: 3 * time.Second})
	require.NoError(t, err)

	msgs, err := store.Messages().ListOrdered(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	types := map[domain.MessageType]domain.Message{}
	for _, m := range msgs {
		types[m.Type()] = m
	}
	img := types[domain.MessageTypeImage].Payload.(domain.ImagePayload)
	_, ok := store.Blob(img.ImageURL[len("mem://blobs/"):])
	assert.True(t, ok, "image url resolves to the stored blob")

	file := types[domain.MessageTypeFile].Payload.(domain.FilePayload)
	assert.Equal(t, "report.pdf", file.FileName)
	assert.Equal(t, int64(len("%PDF-1.4 report")), file.FileSize)

	audio := types[domain.MessageTypeAudio].Payload.(domain.AudioPayload)
	assert.Equal(t, 3*time.Second, audio.Duration)
}

// 上傳失敗時不建立訊息
func TestMessageUseCase_SendImageUploadFailure(t *testing.T) {
	ctx := context.Background()
	stubLocalFiles(t, map[string][]byte{"/tmp/img": pngHeader})
	store := repository.NewMemoryStore("")
	mockBlob := new(MockBlobStore)
	mockBlob.On("Upload", ctx, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("minio down"))

	uc := NewMessageUseCase(store, store.Messages(), store, NewAttachmentUseCase(mockBlob, 0))
	_, err := uc.SendImage(ctx, "r1", "u1", "/tmp/img", nil)
	assert.ErrorIs(t, err, domain.ErrUploadFailure)

	msgs, err := store.Messages().ListOrdered(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessageUseCase_Subscribe(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore("")
	uc := newMemoryMessageUseCase(store)
	rec := newSnapshotRecorder()

	unsubscribe, err := uc.Subscribe(ctx, "r1", rec.onSnapshot)
	require.NoError(t, err)

	rec.waitFor(t, func(msgs []domain.Message) bool { return len(msgs) == 0 })

	_, err = uc.SendText(ctx, "r1", "p7", "Hello")
	require.NoError(t, err)
	_, err = uc.SendText(ctx, "r1", "d3", "Hi")
	require.NoError(t, err)

	msgs := rec.waitFor(t, func(msgs []domain.Message) bool { return len(msgs) == 2 })
	first, _ := msgs[0].Text()
	assert.Equal(t, "Hello", first)

	unsubscribe()
	unsubscribe()

	// 取消後不再收到包含新訊息的 snapshot
	_, err = uc.SendText(ctx, "r1", "p7", "after")
	require.NoError(t, err)
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case msgs := <-rec.ch:
			assert.Len(t, msgs, 2, "snapshot delivered after unsubscribe")
		case <-deadline:
			return
		}
	}
}

// 任何寫入順序下 snapshot 都依 createdAt 遞增
func TestMessageUseCase_SnapshotSortedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore("")
	uc := newMemoryMessageUseCase(store)

	base := time.Unix(1_700_000_000, 0)
	offsets := []int{5, 1, 4, 1, 3, 0, 2}
	orig := timeNow
	t.Cleanup(func() { timeNow = orig })
	for _, off := range offsets {
		at := base.Add(time.Duration(off) * time.Second)
		timeNow = func() time.Time { return at }
		_, err := uc.SendText(ctx, "r1", "p7", "m")
		require.NoError(t, err)
	}
	timeNow = orig

	rec := newSnapshotRecorder()
	unsubscribe, err := uc.Subscribe(ctx, "r1", rec.onSnapshot)
	require.NoError(t, err)
	defer unsubscribe()

	msgs := rec.waitFor(t, func(msgs []domain.Message) bool { return len(msgs) == len(offsets) })
	assert.True(t, sort.SliceIsSorted(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) }))
}

func TestMessageUseCase_SubscribeFeedFailure(t *testing.T) {
	ctx := context.Background()
	mockFeed := new(MockChangeFeed)
	mockFeed.On("Subscribe", mock.Anything, "r1", mock.Anything).Return(nil, errors.New("redis down"))

	_, err := NewMessageUseCase(new(MockRoomRepository), new(MockMessageRepository), mockFeed, nil).Subscribe(ctx, "r1", func([]domain.Message) {})
	assert.Error(t, err)
}
