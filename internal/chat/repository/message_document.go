package repository

import (
	"fmt"
	"time"

	"clinic_chat_service/internal/chat/domain"
)

// messageDocument is the stored shape of a message: one flat document with
// a type discriminator. Only the fields of its type are set.
type messageDocument struct {
	ID        string             `bson:"_id"`
	RoomID    string             `bson:"room_id"`
	SenderID  string             `bson:"sender_id"`
	Type      domain.MessageType `bson:"type"`
	Content   string             `bson:"content,omitempty"`
	ImageURL  string             `bson:"image_url,omitempty"`
	AudioURL  string             `bson:"audio_url,omitempty"`
	AudioMs   int64              `bson:"audio_ms,omitempty"`
	FileURL   string             `bson:"file_url,omitempty"`
	FileName  string             `bson:"file_name,omitempty"`
	FileSize  int64              `bson:"file_size,omitempty"`
	MimeType  string             `bson:"mime_type,omitempty"`
	Delivered bool               `bson:"delivered"`
	IsRead    bool               `bson:"is_read"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt *time.Time         `bson:"updated_at,omitempty"`
}

func toDocument(m *domain.Message) (messageDocument, error) {
	doc := messageDocument{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Delivered: m.Delivered,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	switch p := m.Payload.(type) {
	case domain.TextPayload:
		doc.Content = p.Content
	case domain.ImagePayload:
		doc.ImageURL = p.ImageURL
	case domain.AudioPayload:
		doc.AudioURL = p.AudioURL
		doc.AudioMs = p.Duration.Milliseconds()
	case domain.FilePayload:
		doc.FileURL = p.FileURL
		doc.FileName = p.FileName
		doc.FileSize = p.FileSize
		doc.MimeType = p.MimeType
	default:
		return doc, fmt.Errorf("%w: message[%s] has no payload", domain.ErrInvalidInput, m.ID)
	}
	doc.Type = m.Payload.Type()
	return doc, nil
}

func (d messageDocument) toDomain() domain.Message {
	m := domain.Message{
		ID:        d.ID,
		RoomID:    d.RoomID,
		SenderID:  d.SenderID,
		Delivered: d.Delivered,
		IsRead:    d.IsRead,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}

	switch d.Type {
	case domain.MessageTypeImage:
		m.Payload = domain.ImagePayload{ImageURL: d.ImageURL}
	case domain.MessageTypeAudio:
		m.Payload = domain.AudioPayload{AudioURL: d.AudioURL, Duration: time.Duration(d.AudioMs) * time.Millisecond}
	case domain.MessageTypeFile:
		m.Payload = domain.FilePayload{FileURL: d.FileURL, FileName: d.FileName, FileSize: d.FileSize, MimeType: d.MimeType}
	default:
		// 舊資料沒有 type 欄位時視為文字
		m.Payload = domain.TextPayload{Content: d.Content}
	}
	return m
}
