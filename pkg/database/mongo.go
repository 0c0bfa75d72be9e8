package database

import (
	"context"
	"errors"
	"time"

	"clinic_chat_service/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// NewMongoDB create a new MongoDB connection
func NewMongoDB(ctx context.Context, c Connection, dbName string) (*MongoDB, error) {
	clientOpts := options.Client().ApplyURI(c.ConnectStr)

	var client *mongo.Client
	var err error

	for i := 0; i <= c.RetryCount; i++ {
		client, err = mongo.Connect(ctx, clientOpts)
		if err == nil {
			pingErr := client.Ping(ctx, readpref.Primary())
			if pingErr == nil {
				return &MongoDB{
					Client:   client,
					Database: client.Database(dbName),
				}, nil
			}
			err = pingErr
		}

		logger.Log.Warn("Failed to connect to mongoDB, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		if i < c.RetryCount {
			time.Sleep(c.RetryInterval)
		}
	}

	return nil, errors.New("failed to connect to MongoDB after retries: " + err.Error())
}

// EnsureChatIndexes creates the indexes the chat repositories query on.
func (m *MongoDB) EnsureChatIndexes(ctx context.Context, messagesColl string) error {
	_, err := m.Database.Collection(messagesColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		// subscribe / snapshot: room_id + created_at 升序
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}}},
		// 未讀 / 未送達掃描
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "is_read", Value: 1}}},
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "delivered", Value: 1}}},
	})
	return err
}

// Close disable mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
