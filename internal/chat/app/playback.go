package app

import (
	"context"
	"sync"

	"clinic_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// AudioPlayer playback side of the host audio facility
type AudioPlayer interface {
	Play(ctx context.Context, url string) error
	Stop() error
}

// PlaybackSlot plays at most one audio message at a time
type PlaybackSlot struct {
	mu      sync.Mutex
	player  AudioPlayer
	current string
}

// NewPlaybackSlot create an empty playback slot
func NewPlaybackSlot(player AudioPlayer) *PlaybackSlot {
	return &PlaybackSlot{player: player}
}

// Toggle stops messageID if it is playing, otherwise stops whatever plays and starts messageID.
// It reports whether messageID is playing afterwards.
func (p *PlaybackSlot) Toggle(ctx context.Context, messageID, url string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != "" {
		wasPlaying := p.current
		p.stopLocked()
		if wasPlaying == messageID {
			return false, nil
		}
	}

	if err := p.player.Play(ctx, url); err != nil {
		return false, err
	}
	p.current = messageID
	return true, nil
}

// Stop stops the current playback, if any
func (p *PlaybackSlot) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Current id of the playing message, "" when nothing plays
func (p *PlaybackSlot) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *PlaybackSlot) stopLocked() {
	if p.current == "" {
		return
	}
	if err := p.player.Stop(); err != nil {
		logger.Log.Warn("stop playback", zap.String("message_id", p.current), zap.Error(err))
	}
	p.current = ""
}
