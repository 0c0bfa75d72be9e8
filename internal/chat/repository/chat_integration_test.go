//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"clinic_chat_service/internal/chat/domain"
	"clinic_chat_service/pkg/database"
	"clinic_chat_service/pkg/logger"
	testtool "clinic_chat_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoDB     *database.MongoDB
	redisClient *redis.Client
	minioClient *database.MinIOClient
)

// TestMain 啟動 MongoDB / Redis / MinIO 容器
func TestMain(m *testing.M) {
	ctx := context.Background()
	logger.SetNewNop()

	mongoContainer, mongoHost, mongoPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start MongoDB container: %v", err)
	}

	redisContainer, redisHost, redisPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start Redis container: %v", err)
	}

	minioContainer, minioHost, minioPort, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env:          map[string]string{"MINIO_ROOT_USER": "minio", "MINIO_ROOT_PASSWORD": "minio123"},
		Cmd:          []string{"server", "/data"},
		WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	})
	if err != nil {
		log.Fatalf("❌ Failed to start MinIO container: %v", err)
	}

	mongoDB, err = database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s", mongoHost, mongoPort),
		RetryCount:    5,
		RetryInterval: time.Second,
	}, "test_chat_db")
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	if err := mongoDB.EnsureChatIndexes(ctx, MessagesCollection); err != nil {
		log.Fatalf("❌ Failed to create indexes: %v", err)
	}

	redisClient, err = database.NewRedisClient(fmt.Sprintf("%s:%s", redisHost, redisPort), 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	minioClient, err = database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%s", minioHost, minioPort),
		User:       "minio",
		Password:   "minio123",
		BucketName: "chat-test",
		URLExpiry:  time.Hour,
		RetryCount: 5, RetryInterval: time.Second,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to MinIO: %v", err)
	}

	code := m.Run()

	_ = mongoDB.Close(ctx)
	_ = redisClient.Close()
	_ = mongoContainer.Terminate(ctx)
	_ = redisContainer.Terminate(ctx)
	_ = minioContainer.Terminate(ctx)
	os.Exit(code)
}

func TestMongoRoomRepository_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewMongoChatRoomRepository(mongoDB.Database)
	id := domain.DeriveRoomID("p-int", "d-int")
	first := time.Now().UTC().Truncate(time.Millisecond)

	created, err := repo.CreateIfAbsent(ctx, &domain.ChatRoom{ID: id, PatientID: "p-int", DoctorID: "d-int", CreatedAt: first, UpdatedAt: first})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, &domain.ChatRoom{ID: id, PatientID: "p-int", DoctorID: "d-int", CreatedAt: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)

	room, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, first.Equal(room.CreatedAt))
	assert.Nil(t, room.LastMessage)

	last := "Hello"
	require.NoError(t, repo.Touch(ctx, id, first.Add(time.Minute), &last))
	room, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, room.LastMessage)
	assert.Equal(t, "Hello", *room.LastMessage)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMongoMessageRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMongoChatMessageRepository(mongoDB.Database)
	roomID := domain.DeriveRoomID("p-msg", "d-msg")
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Insert(ctx, &domain.Message{ID: "m2", RoomID: roomID, SenderID: "p-msg", Payload: domain.FilePayload{FileURL: "u", FileName: "a.pdf"}, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, repo.Insert(ctx, &domain.Message{ID: "m1", RoomID: roomID, SenderID: "p-msg", Payload: domain.TextPayload{Content: "Hello"}, CreatedAt: base}))

	list, err := repo.ListOrdered(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, domain.MessageTypeFile, list[1].Type())

	changed, err := repo.SetReceipt(ctx, roomID, "m1", domain.ReceiptRead, "p-msg")
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = repo.SetReceipt(ctx, roomID, "m1", domain.ReceiptRead, "d-msg")
	require.NoError(t, err)
	assert.True(t, changed)

	unread, err := repo.FindUnmarked(ctx, roomID, domain.ReceiptRead, "d-msg")
	require.NoError(t, err)
	assert.Len(t, unread, 1)
	assert.Equal(t, "m2", unread[0].ID)

	assert.ErrorIs(t, repo.ReplaceContent(ctx, roomID, "m2", "d-msg", "x", base), domain.ErrNotFound)
	require.NoError(t, repo.ReplaceContent(ctx, roomID, "m2", "p-msg", "edited", base))
	got, err := repo.FindByID(ctx, roomID, "m2")
	require.NoError(t, err)
	text, ok := got.Text()
	assert.True(t, ok)
	assert.Equal(t, "edited", text)

	require.NoError(t, repo.Delete(ctx, roomID, "m2", "p-msg"))
	assert.ErrorIs(t, repo.Delete(ctx, roomID, "m2", "p-msg"), domain.ErrNotFound)
}

func TestRedisPubSub_DeliversRoomChanges(t *testing.T) {
	ctx := context.Background()
	feed := NewRedisPubSub(redisClient, "chat:room:")
	got := make(chan struct{}, 4)

	cancel, err := feed.Subscribe(ctx, "r-int", func() { got <- struct{}{} })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.Publish(ctx, "r-int"))

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification received")
	}

	cancel()
	cancel()
}

func TestMinIOBlobStore_Upload(t *testing.T) {
	ctx := context.Background()
	store := NewMinIOBlobStore(minioClient)

	url, err := store.Upload(ctx, "chats/r1/image/test.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Contains(t, url, "chats/r1/image/test.png")
}
