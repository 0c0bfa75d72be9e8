package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"clinic_chat_service/internal/chat/app"
	"clinic_chat_service/internal/chat/repository"
	"clinic_chat_service/internal/chat/router"
	"clinic_chat_service/pkg/config"
	"clinic_chat_service/pkg/database"
	"clinic_chat_service/pkg/logger"
	"clinic_chat_service/pkg/token"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

// stores 聊天室所需的儲存實作
type stores struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	feed     repository.ChangeFeed
	blobs    repository.BlobStore
	// mem 僅在 memory driver 時有值
	mem      *repository.MemoryStore
	close    func()
}

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath, config.DefaultChat())
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	if err := cfg.CheckRunEnv(); err != nil {
		logger.Log.Fatal("check config", zap.Error(err))
	}
	if port := config.EnvConfig.ChatServicePort; port != "" {
		cfg.Port = port
	}
	logger.Log.SetDebugMode(cfg.Debug || config.IsLocal())

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		token.JWTSecret = []byte(secret)
	}

	ctx := context.Background()
	st := openStores(ctx, cfg)
	defer st.close()

	// 初始化 UseCases
	rooms := app.NewRoomUseCase(st.rooms)
	attachments := app.NewAttachmentUseCase(st.blobs, cfg.Attachment.MaxBytes)
	messages := app.NewMessageUseCase(st.rooms, st.messages, st.feed, attachments)
	lifecycle := app.NewLifecycleUseCase(st.rooms, st.messages, st.feed, cfg.Receipt.Concurrency)

	wsHandler := app.NewChatWebsocketHandler(app.SessionDeps{
		Rooms:      rooms,
		Messages:   messages,
		Lifecycle:  lifecycle,
		Microphone: app.NewMicrophone(),
		Thresholds: app.RecordingThresholds{
			Cancel: cfg.Recording.CancelThreshold,
			Lock:   cfg.Recording.LockThreshold,
		},
	})
	attachmentHandler := app.NewAttachmentHandler(rooms, messages, cfg.Attachment.TmpDir)

	// 啟動 Fiber
	r := fiber.New(fiber.Config{BodyLimit: int(cfg.Attachment.MaxBytes) + 1<<20})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("open access log", zap.Error(err))
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(r, wsHandler, attachmentHandler)
	if st.mem != nil {
		r.Get("/blobs/*", func(c *fiber.Ctx) error {
			b, ok := st.mem.Blob(c.Params("*"))
			if !ok {
				return fiber.ErrNotFound
			}
			c.Set(fiber.HeaderContentType, mimetype.Detect(b).String())
			return c.Send(b)
		})
	}

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port), zap.String("store", cfg.Store.Driver))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg config.Chat) stores {
	if cfg.Store.Driver == "memory" {
		mem := repository.NewMemoryStore("http://localhost:" + cfg.Port + "/blobs")
		logger.Log.Warn("using in-memory chat store, data is lost on restart")
		return stores{rooms: mem, messages: mem.Messages(), feed: mem, blobs: mem, mem: mem, close: func() {}}
	}

	// 建立 Mongo 連線 (存聊天室與訊息)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoDB.RetryCount,
			RetryInterval: time.Duration(cfg.MongoDB.RetryInterval) * time.Second,
		},
		cfg.MongoDB.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries",
			zap.String("host", cfg.MongoDB.Host),
			zap.Error(err),
		)
	}
	if err := mongo.EnsureChatIndexes(ctx, repository.MessagesCollection); err != nil {
		logger.Log.Fatal("create chat indexes", zap.Error(err))
	}

	// 建立 Redis 連線 (Pub/Sub)
	redisClient, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal("connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	// 建立 MinIO 連線 (附件)
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.BucketName,
		UseSSL:        cfg.MinIO.UseSSL,
		PublicBaseURL: cfg.MinIO.PublicBaseURL,
		URLExpiry:     cfg.MinIO.URLExpiry,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal("connect minIO", zap.String("endpoint", cfg.MinIO.Endpoint), zap.Error(err))
	}

	return stores{
		rooms:    repository.NewMongoChatRoomRepository(mongo.Database),
		messages: repository.NewMongoChatMessageRepository(mongo.Database),
		feed:     repository.NewRedisPubSub(redisClient, cfg.Redis.ChannelPrefix),
		blobs:    repository.NewMinIOBlobStore(minioClient),
		close: func() {
			_ = redisClient.Close()
			if err := mongo.Close(ctx); err != nil {
				logger.Log.Warn("close mongo", zap.Error(err))
			}
		},
	}
}
