package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"clinic_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RoomChangeEvent payload published on a room channel
type RoomChangeEvent struct {
	RoomID string `json:"room_id"`
	At     int64  `json:"at"`
}

// RedisPubSub definition redis pub/sub change feed
type RedisPubSub struct {
	client *redis.Client
	prefix string
}

// NewRedisPubSub create RedisPubSub, channel = prefix + roomID
func NewRedisPubSub(client *redis.Client, prefix string) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisPubSub) channel(roomID string) string {
	return r.prefix + roomID
}

// Publish 通知聊天室訂閱者訊息列表有變動
func (r *RedisPubSub) Publish(ctx context.Context, roomID string) error {
	data, err := json.Marshal(RoomChangeEvent{RoomID: roomID, At: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(roomID), data).Err()
}

// Subscribe 訂閱聊天室 channel, 收到通知後呼叫 onChange
func (r *RedisPubSub) Subscribe(ctx context.Context, roomID string, onChange func()) (func(), error) {
	channel := r.channel(roomID)
	sub := r.client.Subscribe(ctx, channel)
	// 確認訂閱成功後才回傳, 避免漏掉之後的 Publish
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := sub.Close(); err != nil {
				logger.Log.Warn("redis sub close", zap.String("channel", channel), zap.Error(err))
			}
		})
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var evt RoomChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					logger.Log.Warn("skip malformed room change event", zap.String("channel", channel), zap.Error(err))
					continue
				}
				onChange()
			case <-subCtx.Done():
				logger.Log.Debug("room sub close", zap.String("channel", channel))
				stop()
				return
			}
		}
	}()

	return stop, nil
}
