package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinic_chat_service/internal/chat/domain"

	"github.com/samber/lo"
)

// MemoryStore is a single-process store implementing RoomRepository,
// MessageRepository, ChangeFeed and BlobStore. Used by tests and the
// "memory" store driver.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]domain.ChatRoom
	messages map[string][]storedMessage // roomID -> insertion order
	seq      int64

	subMu   sync.Mutex
	subs    map[string]map[int64]func()
	nextSub int64

	blobs   map[string][]byte
	baseURL string
}

type storedMessage struct {
	seq int64
	msg domain.Message
}

// NewMemoryStore create an empty MemoryStore. Blob URLs are baseURL + "/" + objectName.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]domain.ChatRoom),
		messages: make(map[string][]storedMessage),
		subs:     make(map[string]map[int64]func()),
		blobs:    make(map[string][]byte),
		baseURL:  baseURL,
	}
}

// CreateIfAbsent implements RoomRepository.
func (s *MemoryStore) CreateIfAbsent(_ context.Context, room *domain.ChatRoom) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return false, nil
	}
	s.rooms[room.ID] = *room
	return true, nil
}

// FindByID implements RoomRepository.
func (s *MemoryStore) FindByID(_ context.Context, roomID string) (*domain.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room[%s]: %w", roomID, domain.ErrNotFound)
	}
	return &room, nil
}

// Touch implements RoomRepository.
func (s *MemoryStore) Touch(_ context.Context, roomID string, at time.Time, lastMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		// Mongo UpdateOne 對不存在的文件也不報錯, 行為一致
		return nil
	}
	room.UpdatedAt = at
	if lastMessage != nil {
		v := *lastMessage
		room.LastMessage = &v
	}
	s.rooms[roomID] = room
	return nil
}

// Insert implements MessageRepository.
func (s *MemoryStore) Insert(_ context.Context, msg *domain.Message) error {
	if msg.Payload == nil {
		return fmt.Errorf("%w: message[%s] has no payload", domain.ErrInvalidInput, msg.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sm := range s.messages[msg.RoomID] {
		if sm.msg.ID == msg.ID {
			return fmt.Errorf("message[%s] already exists", msg.ID)
		}
	}
	s.seq++
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], storedMessage{seq: s.seq, msg: *msg})
	return nil
}

// findMessage returns the index of messageID in the room. Caller holds mu.
func (s *MemoryStore) findMessage(roomID, messageID string) (int, bool) {
	for i, sm := range s.messages[roomID] {
		if sm.msg.ID == messageID {
			return i, true
		}
	}
	return -1, false
}

// ListOrdered implements MessageRepository.
func (s *MemoryStore) ListOrdered(_ context.Context, roomID string) ([]domain.Message, error) {
	s.mu.Lock()
	stored := append([]storedMessage(nil), s.messages[roomID]...)
	s.mu.Unlock()

	sort.SliceStable(stored, func(i, j int) bool {
		if stored[i].msg.CreatedAt.Equal(stored[j].msg.CreatedAt) {
			return stored[i].seq < stored[j].seq
		}
		return stored[i].msg.CreatedAt.Before(stored[j].msg.CreatedAt)
	})
	return lo.Map(stored, func(sm storedMessage, _ int) domain.Message { return sm.msg }), nil
}

// ReplaceContent implements MessageRepository.
func (s *MemoryStore) ReplaceContent(_ context.Context, roomID, messageID, senderID, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findMessage(roomID, messageID)
	if !ok || s.messages[roomID][i].msg.SenderID != senderID {
		return fmt.Errorf("message[%s]: %w", messageID, domain.ErrNotFound)
	}
	m := &s.messages[roomID][i].msg
	m.Payload = domain.TextPayload{Content: content}
	m.UpdatedAt = &at
	return nil
}

// Delete implements MessageRepository.
func (s *MemoryStore) Delete(_ context.Context, roomID, messageID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findMessage(roomID, messageID)
	if !ok || s.messages[roomID][i].msg.SenderID != senderID {
		return fmt.Errorf("message[%s]: %w", messageID, domain.ErrNotFound)
	}
	list := s.messages[roomID]
	s.messages[roomID] = append(list[:i:i], list[i+1:]...)
	return nil
}

// FindUnmarked implements MessageRepository.
func (s *MemoryStore) FindUnmarked(ctx context.Context, roomID string, receipt domain.Receipt, selfID string) ([]domain.Message, error) {
	all, err := s.ListOrdered(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(m domain.Message, _ int) bool { return m.CanMark(receipt, selfID) }), nil
}

// SetReceipt implements MessageRepository.
func (s *MemoryStore) SetReceipt(_ context.Context, roomID, messageID string, receipt domain.Receipt, selfID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.findMessage(roomID, messageID)
	if !ok {
		return false, nil
	}
	m := &s.messages[roomID][i].msg
	if !m.CanMark(receipt, selfID) {
		return false, nil
	}
	if receipt == domain.ReceiptRead {
		m.IsRead = true
	} else {
		m.Delivered = true
	}
	return true, nil
}

// Publish implements ChangeFeed. Subscribers are called synchronously.
func (s *MemoryStore) Publish(_ context.Context, roomID string) error {
	s.subMu.Lock()
	callbacks := lo.Values(s.subs[roomID])
	s.subMu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return nil
}

// Subscribe implements ChangeFeed.
func (s *MemoryStore) Subscribe(_ context.Context, roomID string, onChange func()) (func(), error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[int64]func())
	}
	s.subs[roomID][id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[roomID], id)
		})
	}, nil
}

// Upload implements BlobStore.
func (s *MemoryStore) Upload(_ context.Context, objectName string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[objectName] = append([]byte(nil), data...)
	return s.baseURL + "/" + objectName, nil
}

// Blob returns a stored object.
func (s *MemoryStore) Blob(objectName string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[objectName]
	return b, ok
}

// Messages returns a MessageRepository view of the store. MemoryStore
// cannot implement both FindByID methods directly.
func (s *MemoryStore) Messages() MessageRepository {
	return memoryMessages{s}
}

type memoryMessages struct{ *MemoryStore }

func (m memoryMessages) FindByID(_ context.Context, roomID, messageID string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.findMessage(roomID, messageID)
	if !ok {
		return nil, fmt.Errorf("message[%s]: %w", messageID, domain.ErrNotFound)
	}
	msg := m.messages[roomID][i].msg
	return &msg, nil
}
