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

// MessagesCollection mongo collection of chat messages, keyed by room_id
const MessagesCollection = "chat_messages"

type chatMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection(MessagesCollection),
	}
}

// Insert 寫入一筆聊天訊息
func (r *chatMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	doc, err := toDocument(msg)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return err
}

func (r *chatMessageRepository) FindByID(ctx context.Context, roomID, messageID string) (*domain.Message, error) {
	var doc messageDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID, "room_id": roomID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("message[%s]: %w", messageID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	msg := doc.toDomain()
	return &msg, nil
}

// ListOrdered 依 created_at 升序取出整個聊天室的訊息
func (r *chatMessageRepository) ListOrdered(ctx context.Context, roomID string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"room_id": roomID}, opts)
}

func (r *chatMessageRepository) ReplaceContent(ctx context.Context, roomID, messageID, senderID, content string, at time.Time) error {
	filter := bson.M{"_id": messageID, "room_id": roomID, "sender_id": senderID}
	update := bson.M{
		"$set": bson.M{
			"type":       domain.MessageTypeText,
			"content":    content,
			"updated_at": at,
		},
		// 轉成文字後清掉附件欄位
		"$unset": bson.M{
			"image_url": "", "audio_url": "", "audio_ms": "",
			"file_url": "", "file_name": "", "file_size": "", "mime_type": "",
		},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message[%s]: %w", messageID, domain.ErrNotFound)
	}
	return nil
}

func (r *chatMessageRepository) Delete(ctx context.Context, roomID, messageID, senderID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": messageID, "room_id": roomID, "sender_id": senderID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("message[%s]: %w", messageID, domain.ErrNotFound)
	}
	return nil
}

// FindUnmarked 找出對方送來且 receipt 仍為 false 的訊息
func (r *chatMessageRepository) FindUnmarked(ctx context.Context, roomID string, receipt domain.Receipt, selfID string) ([]domain.Message, error) {
	filter := bson.M{
		"room_id":       roomID,
		string(receipt): false,
		"sender_id":     bson.M{"$ne": selfID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, filter, opts)
}

// SetReceipt 條件式更新, 已標記或自己發的訊息不會被動到
func (r *chatMessageRepository) SetReceipt(ctx context.Context, roomID, messageID string, receipt domain.Receipt, selfID string) (bool, error) {
	filter := bson.M{
		"_id":           messageID,
		"room_id":       roomID,
		string(receipt): false,
		"sender_id":     bson.M{"$ne": selfID},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{string(receipt): true}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *chatMessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}

	messages := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, d.toDomain())
	}
	return messages, nil
}
