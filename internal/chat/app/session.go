package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"clinic_chat_service/internal/chat/domain"
	errprocess "clinic_chat_service/pkg/err"
	"clinic_chat_service/pkg/logger"
	"clinic_chat_service/pkg/token"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SessionDeps everything a ChatSession is built from
type SessionDeps struct {
	Identity   IdentityProvider
	Rooms      *RoomUseCase
	Messages   *MessageUseCase
	Lifecycle  *LifecycleUseCase
	Microphone *Microphone
	// Device, Player 為 nil 時錄音與播放一律失敗
	Device     AudioDevice
	Player     AudioPlayer
	Thresholds RecordingThresholds
}

// OpenParams which conversation to open. PatientID defaults to the caller
// unless the caller is a doctor.
type OpenParams struct {
	PatientID string
	DoctorID  string
	// CallerRole 由 token 帶入, 空值時只檢查是否為其中一方
	CallerRole token.RoleType
}

// ChatSession one caller's open conversation with one room.
// Close must be called when the conversation is left.
type ChatSession struct {
	deps      SessionDeps
	callerID  string
	roomID    string
	createdAt *time.Time

	unsubscribe Unsubscribe
	recorder    *RecordingController
	playback    *PlaybackSlot

	closed    atomic.Bool
	closeOnce sync.Once
}

// OpenChatSession resolves the room of the pair and starts delivering
// snapshots to onSnapshot, rendered for the caller. Every snapshot first
// marks the other party's messages read and delivered.
func OpenChatSession(ctx context.Context, deps SessionDeps, params OpenParams, onSnapshot func([]domain.MessageView)) (*ChatSession, error) {
	callerID := ""
	if deps.Identity != nil {
		callerID = deps.Identity.CurrentUserID(ctx)
	}
	if callerID == "" {
		return nil, errprocess.Warn(domain.ErrIdentityMissing, "open chat session without caller")
	}
	if params.DoctorID == "" {
		return nil, errprocess.Warn(domain.ErrIdentityMissing, "open chat session without doctor")
	}
	patientID := params.PatientID
	if patientID == "" && params.CallerRole != token.RoleDoctor {
		patientID = callerID
	}
	if patientID == "" || patientID == params.DoctorID {
		return nil, errprocess.Warn(domain.ErrIdentityMissing, "open chat session of doctor[%s] without patient", params.DoctorID)
	}
	if !callerIsParty(callerID, params.CallerRole, patientID, params.DoctorID) {
		return nil, errprocess.Warn(domain.ErrPermissionDenied, "member[%s] role[%s] is not a party of patient[%s] doctor[%s]", callerID, params.CallerRole, patientID, params.DoctorID)
	}

	roomID, err := deps.Rooms.EnsureRoom(ctx, patientID, params.DoctorID)
	if err != nil {
		return nil, err
	}
	meta, err := deps.Rooms.GetRoomMeta(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if deps.Microphone == nil {
		deps.Microphone = NewMicrophone()
	}
	if deps.Device == nil {
		deps.Device = NoAudioDevice{}
	}
	if deps.Player == nil {
		deps.Player = NoAudioDevice{}
	}

	s := &ChatSession{
		deps:      deps,
		callerID:  callerID,
		roomID:    roomID,
		createdAt: meta.CreatedAt,
		recorder:  NewRecordingController(deps.Device, deps.Microphone, deps.Messages, roomID, callerID, deps.Thresholds),
		playback:  NewPlaybackSlot(deps.Player),
	}

	// 已讀/已送達寫入不隨 session 關閉而中斷
	markCtx := context.WithoutCancel(ctx)
	s.unsubscribe, err = deps.Messages.Subscribe(ctx, roomID, func(msgs []domain.Message) {
		s.handleSnapshot(markCtx, msgs, onSnapshot)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("chat session opened", zap.String("room_id", roomID), zap.String("caller", callerID))
	return s, nil
}

func callerIsParty(callerID string, role token.RoleType, patientID, doctorID string) bool {
	switch role {
	case token.RolePatient:
		return callerID == patientID
	case token.RoleDoctor:
		return callerID == doctorID
	default:
		return callerID == patientID || callerID == doctorID
	}
}

func (s *ChatSession) handleSnapshot(ctx context.Context, msgs []domain.Message, onSnapshot func([]domain.MessageView)) {
	if s.closed.Load() {
		return
	}

	if lo.SomeBy(msgs, func(m domain.Message) bool { return m.CanMark(domain.ReceiptRead, s.callerID) }) {
		s.deps.Lifecycle.MarkRead(ctx, s.roomID, s.callerID)
	}
	if lo.SomeBy(msgs, func(m domain.Message) bool { return m.CanMark(domain.ReceiptDelivered, s.callerID) }) {
		s.deps.Lifecycle.MarkDelivered(ctx, s.roomID, s.callerID)
	}

	if onSnapshot != nil {
		onSnapshot(lo.Map(msgs, func(m domain.Message, _ int) domain.MessageView { return domain.ViewFor(m, s.callerID) }))
	}
}

// RoomID id of the open room
func (s *ChatSession) RoomID() string { return s.roomID }

// CallerID the member the session acts as
func (s *ChatSession) CallerID() string { return s.callerID }

// VideoCallRoomID room id handed to the video call host
func (s *ChatSession) VideoCallRoomID() string { return s.roomID }

// RoomCreatedAt creation time of the room, nil if unknown
func (s *ChatSession) RoomCreatedAt() *time.Time { return s.createdAt }

// Recorder voice note recorder of this session
func (s *ChatSession) Recorder() *RecordingController { return s.recorder }

// SendText send a text message as the caller
func (s *ChatSession) SendText(ctx context.Context, content string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.deps.Messages.SendText(ctx, s.roomID, s.callerID, content)
}

// SendImage upload and send an image as the caller
func (s *ChatSession) SendImage(ctx context.Context, localRef string, meta *AttachmentMeta) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.deps.Messages.SendImage(ctx, s.roomID, s.callerID, localRef, meta)
}

// SendFile upload and send a document as the caller
func (s *ChatSession) SendFile(ctx context.Context, localRef string, meta *AttachmentMeta) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.deps.Messages.SendFile(ctx, s.roomID, s.callerID, localRef, meta)
}

// Edit edit one of the caller's messages
func (s *ChatSession) Edit(ctx context.Context, messageID, content string) (domain.MutationOutcome, error) {
	if err := s.checkOpen(); err != nil {
		return domain.OutcomeMissing, err
	}
	return s.deps.Lifecycle.Edit(ctx, s.roomID, messageID, s.callerID, content)
}

// Delete delete one of the caller's messages
func (s *ChatSession) Delete(ctx context.Context, messageID string) (domain.MutationOutcome, error) {
	if err := s.checkOpen(); err != nil {
		return domain.OutcomeMissing, err
	}
	return s.deps.Lifecycle.Delete(ctx, s.roomID, messageID, s.callerID)
}

// TogglePlayback play or stop an audio message
func (s *ChatSession) TogglePlayback(ctx context.Context, messageID, url string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	return s.playback.Toggle(ctx, messageID, url)
}

// PlayingMessageID id of the audio message playing, "" when none
func (s *ChatSession) PlayingMessageID() string { return s.playback.Current() }

// Close stops snapshot delivery and releases the recorder and the player. Idempotent.
func (s *ChatSession) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.unsubscribe()
		if err := s.recorder.Close(ctx); err != nil {
			logger.Log.Warn("close recorder", zap.String("room_id", s.roomID), zap.Error(err))
		}
		s.playback.Stop()
		logger.Log.Info("chat session closed", zap.String("room_id", s.roomID), zap.String("caller", s.callerID))
	})
}

func (s *ChatSession) checkOpen() error {
	if s.closed.Load() {
		return errprocess.Warn(domain.ErrInvalidInput, "chat session room[%s] closed", s.roomID)
	}
	return nil
}
