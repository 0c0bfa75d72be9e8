package domain

// Action websocket request action
type Action string

const (
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// EditMessage websocket action edit_message
	EditMessage Action = "edit_message"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"
	// VideoCall websocket action video_call, answers with the room id to hand off
	VideoCall Action = "video_call"

	// Snapshot server push, full ordered message list
	Snapshot Action = "snapshot"
	// SessionOpened server push after the room is resolved
	SessionOpened Action = "session_opened"
)

// WSRequest websocket Request
type WSRequest struct {
	Action    string `json:"action"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// MessageView is a message as rendered for one viewer.
type MessageView struct {
	ID        string         `json:"id"`
	SenderID  string         `json:"sender_id"`
	Type      MessageType    `json:"type"`
	Payload   Payload        `json:"payload"`
	Status    DeliveryStatus `json:"status"`
	IsMine    bool           `json:"is_mine"`
	Edited    bool           `json:"edited"`
	CreatedAt int64          `json:"created_at"`
}

// ViewFor renders m for viewerID.
func ViewFor(m Message, viewerID string) MessageView {
	return MessageView{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Type:      m.Type(),
		Payload:   m.Payload,
		Status:    m.StatusFor(viewerID),
		IsMine:    m.SenderID == viewerID,
		Edited:    m.UpdatedAt != nil,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}
