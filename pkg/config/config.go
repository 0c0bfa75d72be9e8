package config

import (
	"errors"
	"time"
)

// Chat definition chat_service YAML structure
type Chat struct {
	Port    string         `mapstructure:"port" validate:"required"`
	Debug   bool           `mapstructure:"debug"`
	Store   StoreConfig    `mapstructure:"store"`
	MongoDB DatabaseConfig `mapstructure:"mongo"`
	Redis   RedisConfig    `mapstructure:"redis"`
	MinIO   MinIOConfig    `mapstructure:"minio"`

	Attachment AttachmentConfig `mapstructure:"attachment"`
	Recording  RecordingConfig  `mapstructure:"recording"`
	Receipt    ReceiptConfig    `mapstructure:"receipt"`
}

// StoreConfig selects the backing store implementation.
type StoreConfig struct {
	// Driver is "mongo" (mongo + redis + minio) or "memory" (single process, local dev).
	Driver string `mapstructure:"driver" validate:"oneof=mongo memory"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
	// ChannelPrefix 聊天室變更通知 channel 前綴
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	BucketName string `mapstructure:"bucket"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	// PublicBaseURL, when set, is used to build object URLs instead of presigning.
	PublicBaseURL string        `mapstructure:"public_base_url"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// AttachmentConfig limits for uploaded files
type AttachmentConfig struct {
	MaxBytes int64  `mapstructure:"max_bytes" validate:"gte=0"`
	TmpDir   string `mapstructure:"tmp_dir"`
}

// RecordingConfig gesture thresholds in pointer units
type RecordingConfig struct {
	CancelThreshold float64 `mapstructure:"cancel_threshold" validate:"gt=0"`
	LockThreshold   float64 `mapstructure:"lock_threshold" validate:"gt=0"`
}

// ReceiptConfig read/delivery receipt batch setting
type ReceiptConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gte=1"`
}

// DefaultChat returns the values used when the YAML omits a key.
func DefaultChat() Chat {
	return Chat{
		Port:    "8082",
		Store:   StoreConfig{Driver: "memory"},
		Redis:   RedisConfig{ChannelPrefix: "chat:room:"},
		MongoDB: DatabaseConfig{RetryCount: 3, RetryInterval: 2},
		MinIO:   MinIOConfig{BucketName: "chat-attachments", URLExpiry: 7 * 24 * time.Hour, RetryCount: 3, RetryInterval: 2},
		Attachment: AttachmentConfig{
			MaxBytes: 25 << 20,
			TmpDir:   "./tmp",
		},
		Recording: RecordingConfig{CancelThreshold: 50, LockThreshold: 70},
		Receipt:   ReceiptConfig{Concurrency: 8},
	}
}

// CheckRunEnv rejects settings that must not run in production.
func (c Chat) CheckRunEnv() error {
	if IsProduction() && c.Store.Driver == "memory" {
		return errors.New("store.driver memory is not allowed in production")
	}
	return nil
}
