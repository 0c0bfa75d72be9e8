package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"clinic_chat_service/internal/chat/domain"
	errprocess "clinic_chat_service/pkg/err"
	"clinic_chat_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// AudioDevice capture side of the host audio facility
type AudioDevice interface {
	CheckPermission(ctx context.Context) error
	StartCapture(ctx context.Context) error
	// StopCapture finalizes the capture and returns a local file reference.
	StopCapture(ctx context.Context) (string, error)
	DiscardCapture(ctx context.Context) error
}

// AudioSender uploads a finished recording and appends the audio message
type AudioSender interface {
	SendAudio(ctx context.Context, roomID, senderID, localRef string, meta *AttachmentMeta) (string, error)
}

// Microphone is the exclusive capture resource shared by every recorder of a process.
type Microphone struct {
	sem *semaphore.Weighted
}

// NewMicrophone create a microphone lease
func NewMicrophone() *Microphone {
	return &Microphone{sem: semaphore.NewWeighted(1)}
}

func (m *Microphone) tryAcquire() bool { return m.sem.TryAcquire(1) }
func (m *Microphone) release() { m.sem.Release(1) }

// RecordingThresholds gesture distances, in pointer units, measured from the press point
type RecordingThresholds struct {
	// Cancel 向左超過此距離 (dx < -Cancel) 放開即取消
	Cancel float64
	// Lock 向上超過此距離 (dy < -Lock) 鎖定錄音
	Lock float64
}

// DefaultRecordingThresholds cancel at dx < -50, lock at dy < -70
var DefaultRecordingThresholds = RecordingThresholds{Cancel: 50, Lock: 70}

// RecordingController press-to-record voice note state machine.
//
//	Idle --Press--> Recording <--Move--> Cancelling
//	Recording/Cancelling --Move(up)--> Locked
//	Recording --Release--> send, Idle
//	Cancelling --Release--> discard, Idle
//	Locked --Release--> Locked
//	any active --Stop--> send, Idle ; --Cancel--> discard, Idle
type RecordingController struct {
	mu        sync.Mutex
	state     domain.RecordingState
	startedAt time.Time
	closed    bool
	onChange  func(domain.RecordingState)

	device     AudioDevice
	mic        *Microphone
	sender     AudioSender
	roomID     string
	senderID   string
	thresholds RecordingThresholds
}

// NewRecordingController create a recorder sending into roomID as senderID
func NewRecordingController(device AudioDevice, mic *Microphone, sender AudioSender, roomID, senderID string, thresholds RecordingThresholds) *RecordingController {
	if thresholds.Cancel <= 0 {
		thresholds.Cancel = DefaultRecordingThresholds.Cancel
	}
	if thresholds.Lock <= 0 {
		thresholds.Lock = DefaultRecordingThresholds.Lock
	}
	return &RecordingController{
		device:     device,
		mic:        mic,
		sender:     sender,
		roomID:     roomID,
		senderID:   senderID,
		thresholds: thresholds,
	}
}

// OnStateChange registers fn, called after every state transition
func (c *RecordingController) OnStateChange(fn func(domain.RecordingState)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State current state
func (c *RecordingController) State() domain.RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed duration of the running capture, zero when idle
func (c *RecordingController) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Capturing() {
		return 0
	}
	return timeNow().Sub(c.startedAt)
}

// Press starts a capture. Ignored unless idle.
func (c *RecordingController) Press(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errprocess.Warn(domain.ErrCaptureFailure, "recorder room[%s] closed", c.roomID)
	}
	if c.state != domain.RecordingIdle {
		c.mu.Unlock()
		return nil
	}

	if err := c.device.CheckPermission(ctx); err != nil {
		c.mu.Unlock()
		return errprocess.Wrap(domain.ErrCaptureFailure, err, "microphone permission")
	}
	if !c.mic.tryAcquire() {
		c.mu.Unlock()
		return errprocess.Warn(domain.ErrCaptureFailure, "microphone busy")
	}
	if err := c.device.StartCapture(ctx); err != nil {
		c.mic.release()
		c.mu.Unlock()
		return errprocess.Wrap(domain.ErrCaptureFailure, err, "start capture")
	}

	c.startedAt = timeNow()
	fn := c.setState(domain.RecordingActive)
	c.mu.Unlock()
	fn()
	return nil
}

// Move applies the pointer offset from the press point. Lock wins over cancel.
func (c *RecordingController) Move(dx, dy float64) {
	c.mu.Lock()
	if c.state != domain.RecordingActive && c.state != domain.RecordingCancelling {
		c.mu.Unlock()
		return
	}

	next := domain.RecordingActive
	switch {
	case dy < -c.thresholds.Lock:
		next = domain.RecordingLocked
	case dx < -c.thresholds.Cancel:
		next = domain.RecordingCancelling
	}
	fn := c.setState(next)
	c.mu.Unlock()
	fn()
}

type endAction int

const (
	endNone endAction = iota
	endSend
	endDiscard
)

// Release ends the press.
func (c *RecordingController) Release(ctx context.Context) (domain.ReleaseOutcome, error) {
	outcome := domain.ReleaseIgnored
	err := c.end(ctx, func(s domain.RecordingState) endAction {
		switch s {
		case domain.RecordingActive:
			outcome = domain.ReleaseSent
			return endSend
		case domain.RecordingCancelling:
			outcome = domain.ReleaseDiscarded
			return endDiscard
		case domain.RecordingLocked:
			outcome = domain.ReleaseKeptLocked
		}
		return endNone
	})
	return outcome, err
}

// Stop finalizes any active capture and sends it
func (c *RecordingController) Stop(ctx context.Context) error {
	return c.end(ctx, func(domain.RecordingState) endAction { return endSend })
}

// Cancel discards any active capture
func (c *RecordingController) Cancel(ctx context.Context) error {
	return c.end(ctx, func(domain.RecordingState) endAction { return endDiscard })
}

// Interrupt handles the capture being taken away by the host.
// A locked recording keeps what was captured; otherwise it is discarded.
func (c *RecordingController) Interrupt(ctx context.Context) error {
	return c.end(ctx, func(s domain.RecordingState) endAction {
		if s == domain.RecordingLocked {
			return endSend
		}
		return endDiscard
	})
}

// Close discards any active capture and rejects further presses. Idempotent.
func (c *RecordingController) Close(ctx context.Context) error {
	err := c.Cancel(ctx)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return err
}

// end leaves the active state as decide says. decide only sees capturing states.
// The microphone is released before the recording is sent.
func (c *RecordingController) end(ctx context.Context, decide func(domain.RecordingState) endAction) error {
	c.mu.Lock()
	if !c.state.Capturing() {
		c.mu.Unlock()
		return nil
	}
	action := decide(c.state)
	if action == endNone {
		c.mu.Unlock()
		return nil
	}

	var (
		localRef string
		err      error
	)
	duration := timeNow().Sub(c.startedAt)
	if action == endSend {
		localRef, err = c.device.StopCapture(ctx)
	} else {
		err = c.device.DiscardCapture(ctx)
	}
	c.mic.release()
	fn := c.setState(domain.RecordingIdle)
	c.mu.Unlock()
	fn()

	if action == endDiscard {
		if err != nil {
			logger.Log.Warn("discard capture", zap.String("room_id", c.roomID), zap.Error(err))
		}
		return nil
	}
	if err != nil {
		return errprocess.Wrap(domain.ErrCaptureFailure, err, "stop capture room[%s]", c.roomID)
	}

	_, err = c.sender.SendAudio(ctx, c.roomID, c.senderID, localRef, &AttachmentMeta{Duration: duration})
	return err
}

// setState must be called with mu held. The returned func runs the callback and must be called after unlocking.
func (c *RecordingController) setState(next domain.RecordingState) func() {
	if c.state == next {
		return func() {}
	}
	prev := c.state
	c.state = next
	logger.Log.Debug("recording state", zap.String("room_id", c.roomID), zap.Stringer("from", prev), zap.Stringer("to", next))

	fn := c.onChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(next) }
}

// NoAudioDevice is used when the host has no microphone or speaker.
type NoAudioDevice struct{}

var errNoAudioDevice = errors.New("no audio device")

func (NoAudioDevice) CheckPermission(context.Context) error { return errNoAudioDevice }
func (NoAudioDevice) StartCapture(context.Context) error { return errNoAudioDevice }
func (NoAudioDevice) StopCapture(context.Context) (string, error) { return "", errNoAudioDevice }
func (NoAudioDevice) DiscardCapture(context.Context) error { return nil }
func (NoAudioDevice) Play(context.Context, string) error { return errNoAudioDevice }
func (NoAudioDevice) Stop() error { return nil }
