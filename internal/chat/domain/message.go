package domain

import (
	"fmt"
	"time"
)

// MessageType message payload discriminator
type MessageType string

const (
	// MessageTypeText plain text
	MessageTypeText MessageType = "text"
	// MessageTypeImage uploaded image
	MessageTypeImage MessageType = "image"
	// MessageTypeAudio recorded voice note
	MessageTypeAudio MessageType = "audio"
	// MessageTypeFile any other document
	MessageTypeFile MessageType = "file"
)

// IsAttachment reports whether the type carries an uploaded binary.
func (t MessageType) IsAttachment() bool {
	return t == MessageTypeImage || t == MessageTypeAudio || t == MessageTypeFile
}

// Payload is the content of a message. Exactly one variant per MessageType.
type Payload interface {
	Type() MessageType
	// Summary is the room's lastMessage text for this payload.
	Summary() string
}

// TextPayload text message body
type TextPayload struct {
	Content string `json:"content"`
}

// ImagePayload image message body
type ImagePayload struct {
	ImageURL string `json:"image_url"`
}

// AudioPayload audio message body
type AudioPayload struct {
	AudioURL string        `json:"audio_url"`
	Duration time.Duration `json:"duration"`
}

// FilePayload file message body
type FilePayload struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

func (TextPayload) Type() MessageType  { return MessageTypeText }
func (ImagePayload) Type() MessageType { return MessageTypeImage }
func (AudioPayload) Type() MessageType { return MessageTypeAudio }
func (FilePayload) Type() MessageType  { return MessageTypeFile }

func (p TextPayload) Summary() string { return p.Content }
func (ImagePayload) Summary() string  { return "[Image]" }
func (AudioPayload) Summary() string  { return "[Audio]" }
func (p FilePayload) Summary() string { return fmt.Sprintf("[File] %s", p.FileName) }

// Message 表示一則聊天訊息
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Payload   Payload
	Delivered bool
	IsRead    bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Type returns the payload discriminator.
func (m Message) Type() MessageType {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Type()
}

// Text returns the content of a text message.
func (m Message) Text() (string, bool) {
	p, ok := m.Payload.(TextPayload)
	return p.Content, ok
}

// Receipt names one of the two monotonic per-message flags.
type Receipt string

const (
	// ReceiptDelivered the delivered flag
	ReceiptDelivered Receipt = "delivered"
	// ReceiptRead the isRead flag
	ReceiptRead Receipt = "is_read"
)

// Marked reports whether the receipt flag is already set on m.
func (m Message) Marked(r Receipt) bool {
	if r == ReceiptRead {
		return m.IsRead
	}
	return m.Delivered
}

// CanMark reports whether selfID may set receipt r on m: only a party
// other than the sender, and only false -> true.
func (m Message) CanMark(r Receipt, selfID string) bool {
	return m.SenderID != selfID && !m.Marked(r)
}

// DeliveryStatus message state as shown to a viewer
type DeliveryStatus string

const (
	// StatusSent stored, not yet delivered
	StatusSent DeliveryStatus = "sent"
	// StatusDelivered delivered, not yet read
	StatusDelivered DeliveryStatus = "delivered"
	// StatusSeen read by the other party
	StatusSeen DeliveryStatus = "seen"
)

// StatusFor returns the state of m from viewerID's point of view.
// The sender sees Sent -> Delivered -> Seen; anyone else sees every loaded
// message as Seen.
func (m Message) StatusFor(viewerID string) DeliveryStatus {
	if m.SenderID != viewerID {
		return StatusSeen
	}
	switch {
	case m.IsRead:
		return StatusSeen
	case m.Delivered:
		return StatusDelivered
	default:
		return StatusSent
	}
}

// MutationOutcome result of an edit or delete that did not fail
type MutationOutcome int

const (
	// OutcomeApplied the change was written
	OutcomeApplied MutationOutcome = iota
	// OutcomeMissing the target no longer exists, nothing was written
	OutcomeMissing
)

func (o MutationOutcome) String() string {
	if o == OutcomeMissing {
		return "missing"
	}
	return "applied"
}
