package app

import (
	"context"
	"errors"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/internal/chat/repository"
	errprocess "clinic_chat_service/pkg/err"
	"clinic_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// timeNow 測試時可替換
var timeNow = time.Now

// RoomUseCase resolves the single chat room of a patient/doctor pair
type RoomUseCase struct {
	roomRepo repository.RoomRepository
}

// NewRoomUseCase init room use case
func NewRoomUseCase(r repository.RoomRepository) *RoomUseCase {
	return &RoomUseCase{
		roomRepo: r,
	}
}

// EnsureRoom returns the room id of the pair, creating the room on first use.
// An existing room is never modified.
func (uc *RoomUseCase) EnsureRoom(ctx context.Context, patientID, doctorID string) (string, error) {
	if patientID == "" || doctorID == "" {
		return "", errprocess.Warn(domain.ErrIdentityMissing, "ensure room patient[%s] doctor[%s]", patientID, doctorID)
	}

	roomID := domain.DeriveRoomID(patientID, doctorID)
	now := timeNow().UTC()
	created, err := uc.roomRepo.CreateIfAbsent(ctx, &domain.ChatRoom{
		ID:        roomID,
		PatientID: patientID,
		DoctorID:  doctorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", errprocess.Wrap(domain.ErrWriteFailure, err, "ensure room[%s]", roomID)
	}
	if created {
		logger.Log.Info("chat room created", zap.String("room_id", roomID))
	}
	return roomID, nil
}

// GetRoomMeta 取得聊天室建立時間, 房間不存在時 CreatedAt 為 nil
func (uc *RoomUseCase) GetRoomMeta(ctx context.Context, roomID string) (domain.RoomMeta, error) {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoomMeta{}, nil
	}
	if err != nil {
		logger.Log.Error("get room meta", zap.String("room_id", roomID), zap.Error(err))
		return domain.RoomMeta{}, err
	}
	createdAt := room.CreatedAt
	return domain.RoomMeta{CreatedAt: &createdAt}, nil
}

// Room 讀取整個聊天室, 用於權限檢查
func (uc *RoomUseCase) Room(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	return uc.roomRepo.FindByID(ctx, roomID)
}
