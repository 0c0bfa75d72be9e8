package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/internal/chat/repository"
	errprocess "clinic_chat_service/pkg/err"
	"clinic_chat_service/pkg/logger"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchReport outcome of one BestEffortBatch run
type BatchReport struct {
	Attempted int
	Applied   int
	// Err 收集每筆失敗, 僅供記錄
	Err error
}

// Failed number of items whose update returned an error.
func (r BatchReport) Failed() int {
	return len(multierr.Errors(r.Err))
}

// BestEffortBatch applies independent per-item writes. A failed item never
// rolls back or stops the others, and the failures are reported, not returned.
type BestEffortBatch struct {
	// Limit 同時進行的寫入數, <= 0 表示不限制
	Limit int
}

// Run calls fn for every id and waits for all of them.
func (b BestEffortBatch) Run(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (bool, error)) BatchReport {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		errs    error
		applied int64
	)
	if b.Limit > 0 {
		g.SetLimit(b.Limit)
	}

	for _, id := range ids {
		id := id
		g.Go(func() error {
			changed, err := fn(ctx, id)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			if changed {
				atomic.AddInt64(&applied, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return BatchReport{Attempted: len(ids), Applied: int(applied), Err: errs}
}

// LifecycleUseCase 訊息的編輯/刪除與已送達/已讀狀態
type LifecycleUseCase struct {
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	feed     repository.ChangeFeed
	batch    BestEffortBatch
}

// NewLifecycleUseCase init lifecycle use case, concurrency bounds receipt writes
func NewLifecycleUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	feed repository.ChangeFeed,
	concurrency int,
) *LifecycleUseCase {
	return &LifecycleUseCase{
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		feed:     feed,
		batch:    BestEffortBatch{Limit: concurrency},
	}
}

// Edit replaces the content of a message authored by requesterID.
// The message becomes a text message.
func (uc *LifecycleUseCase) Edit(ctx context.Context, roomID, messageID, requesterID, newContent string) (domain.MutationOutcome, error) {
	if strings.TrimSpace(newContent) == "" {
		return domain.OutcomeMissing, errprocess.Warn(domain.ErrInvalidInput, "empty edit message[%s]", messageID)
	}
	if outcome, err := uc.checkOwner(ctx, roomID, messageID, requesterID); err != nil || outcome == domain.OutcomeMissing {
		return outcome, err
	}

	now := timeNow().UTC()
	err := uc.msgRepo.ReplaceContent(ctx, roomID, messageID, requesterID, newContent, now)
	if errors.Is(err, domain.ErrNotFound) {
		// 讀取之後被刪除
		return domain.OutcomeMissing, nil
	}
	if err != nil {
		return domain.OutcomeMissing, errprocess.Wrap(domain.ErrWriteFailure, err, "edit message[%s] room[%s]", messageID, roomID)
	}

	// 只更新 updatedAt, lastMessage 保持原本最新一則的摘要
	uc.touch(ctx, roomID, now)
	publishChange(ctx, uc.feed, roomID)
	return domain.OutcomeApplied, nil
}

// Delete hard deletes a message authored by requesterID.
func (uc *LifecycleUseCase) Delete(ctx context.Context, roomID, messageID, requesterID string) (domain.MutationOutcome, error) {
	if outcome, err := uc.checkOwner(ctx, roomID, messageID, requesterID); err != nil || outcome == domain.OutcomeMissing {
		return outcome, err
	}

	err := uc.msgRepo.Delete(ctx, roomID, messageID, requesterID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeMissing, nil
	}
	if err != nil {
		return domain.OutcomeMissing, errprocess.Wrap(domain.ErrWriteFailure, err, "delete message[%s] room[%s]", messageID, roomID)
	}

	uc.touch(ctx, roomID, timeNow().UTC())
	publishChange(ctx, uc.feed, roomID)
	return domain.OutcomeApplied, nil
}

func (uc *LifecycleUseCase) checkOwner(ctx context.Context, roomID, messageID, requesterID string) (domain.MutationOutcome, error) {
	msg, err := uc.msgRepo.FindByID(ctx, roomID, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Log.Debug("mutate vanished message", zap.String("room_id", roomID), zap.String("message_id", messageID))
		return domain.OutcomeMissing, nil
	}
	if err != nil {
		return domain.OutcomeMissing, errprocess.Wrap(domain.ErrWriteFailure, err, "load message[%s] room[%s]", messageID, roomID)
	}
	if msg.SenderID != requesterID {
		return domain.OutcomeMissing, errprocess.Warn(domain.ErrPermissionDenied, "member[%s] is not the sender of message[%s]", requesterID, messageID)
	}
	return domain.OutcomeApplied, nil
}

func (uc *LifecycleUseCase) touch(ctx context.Context, roomID string, at time.Time) {
	if err := uc.roomRepo.Touch(ctx, roomID, at, nil); err != nil {
		logger.Log.Warn("touch room", zap.String("room_id", roomID), zap.Error(err))
	}
}

// MarkDelivered sets delivered on every message in the room not sent by selfID.
func (uc *LifecycleUseCase) MarkDelivered(ctx context.Context, roomID, selfID string) BatchReport {
	return uc.mark(ctx, roomID, selfID, domain.ReceiptDelivered)
}

// MarkRead sets isRead on every message in the room not sent by selfID.
func (uc *LifecycleUseCase) MarkRead(ctx context.Context, roomID, selfID string) BatchReport {
	return uc.mark(ctx, roomID, selfID, domain.ReceiptRead)
}

func (uc *LifecycleUseCase) mark(ctx context.Context, roomID, selfID string, receipt domain.Receipt) BatchReport {
	if selfID == "" {
		return BatchReport{}
	}

	unmarked, err := uc.msgRepo.FindUnmarked(ctx, roomID, receipt, selfID)
	if err != nil {
		logger.Log.Warn("find unmarked messages", zap.String("room_id", roomID), zap.String("receipt", string(receipt)), zap.Error(err))
		return BatchReport{Err: err}
	}
	if len(unmarked) == 0 {
		return BatchReport{}
	}

	ids := lo.Map(unmarked, func(m domain.Message, _ int) string { return m.ID })
	report := uc.batch.Run(ctx, ids, func(ctx context.Context, id string) (bool, error) {
		return uc.msgRepo.SetReceipt(ctx, roomID, id, receipt, selfID)
	})

	if report.Err != nil {
		logger.Log.Warn("receipt batch partially failed",
			zap.String("room_id", roomID),
			zap.String("receipt", string(receipt)),
			zap.Int("attempted", report.Attempted),
			zap.Int("failed", report.Failed()),
			zap.Error(report.Err),
		)
	}
	if report.Applied > 0 {
		publishChange(ctx, uc.feed, roomID)
	}
	return report
}
