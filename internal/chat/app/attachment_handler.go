package app

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/pkg/logger"
	"clinic_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttachmentHandler HTTP upload of images and files into a room
type AttachmentHandler struct {
	rooms    *RoomUseCase
	messages *MessageUseCase
	tmpDir   string
}

// NewAttachmentHandler create AttachmentHandler, uploads are spooled under tmpDir
func NewAttachmentHandler(rooms *RoomUseCase, messages *MessageUseCase, tmpDir string) *AttachmentHandler {
	return &AttachmentHandler{
		rooms:    rooms,
		messages: messages,
		tmpDir:   tmpDir,
	}
}

// FormDurationMS audio 上傳時的錄音長度 (毫秒)
const FormDurationMS = "duration_ms"

// Upload POST /rooms/:roomID/attachments?kind=image|audio|file, multipart field "file".
// Audio uploads may carry the recording length in the duration_ms form field.
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	memberID := token.Identity{}.CurrentUserID(c.UserContext())
	// room id 本身含 %5F, client 會再 escape 一次
	roomID, err := url.PathUnescape(c.Params("roomID"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid room id"})
	}
	kind := domain.MessageType(c.Query("kind", string(domain.MessageTypeFile)))
	if !kind.IsAttachment() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind must be image, audio or file"})
	}

	var duration time.Duration
	if v := c.FormValue(FormDurationMS); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid duration_ms"})
		}
		duration = time.Duration(ms) * time.Millisecond
	}

	room, err := h.rooms.Room(c.UserContext(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !room.HasMember(memberID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": domain.ErrPermissionDenied.Error()})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing file"})
	}

	if err := os.MkdirAll(h.tmpDir, 0o755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	tmpPath := filepath.Join(h.tmpDir, uuid.New().String()+filepath.Ext(fh.Filename))
	if err := c.SaveFile(fh, tmpPath); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil {
			logger.Log.Warn("remove spooled upload", zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	meta := &AttachmentMeta{FileName: fh.Filename, Duration: duration}
	var msgID string
	switch kind {
	case domain.MessageTypeImage:
		msgID, err = h.messages.SendImage(c.UserContext(), roomID, memberID, tmpPath, meta)
	case domain.MessageTypeAudio:
		msgID, err = h.messages.SendAudio(c.UserContext(), roomID, memberID, tmpPath, meta)
	default:
		msgID, err = h.messages.SendFile(c.UserContext(), roomID, memberID, tmpPath, meta)
	}
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, domain.ErrUploadFailure) {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message_id": msgID})
}
