package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoomsCollection mongo collection of chat rooms
const RoomsCollection = "chat_rooms"

type chatRoomRepository struct {
	roomsColl *mongo.Collection
}

// NewMongoChatRoomRepository create new mongo chat room repository
func NewMongoChatRoomRepository(db *mongo.Database) RoomRepository {
	return &chatRoomRepository{
		roomsColl: db.Collection(RoomsCollection),
	}
}

// CreateIfAbsent upsert with $setOnInsert: atomic on the server, an
// existing room keeps every field.
func (r *chatRoomRepository) CreateIfAbsent(ctx context.Context, room *domain.ChatRoom) (bool, error) {
	filter := bson.M{"_id": room.ID}
	update := bson.M{"$setOnInsert": bson.M{
		"patient_id":   room.PatientID,
		"doctor_id":    room.DoctorID,
		"created_at":   room.CreatedAt,
		"updated_at":   room.UpdatedAt,
		"last_message": room.LastMessage,
	}}

	res, err := r.roomsColl.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// 兩個 upsert 同時進來時, 後到者會撞 duplicate key, 等同房間已存在
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return res.UpsertedCount == 1, nil
}

// FindByID find room by id
func (r *chatRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	err := r.roomsColl.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("room[%s]: %w", roomID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Touch update room summary
func (r *chatRoomRepository) Touch(ctx context.Context, roomID string, at time.Time, lastMessage *string) error {
	set := bson.M{"updated_at": at}
	if lastMessage != nil {
		set["last_message"] = *lastMessage
	}
	_, err := r.roomsColl.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{"$set": set})
	return err
}
