package storage

import (
	"context"
	"fmt"

	"chatapp/core"
	"chatapp/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoMessageStorage implements MessageStorage using MongoDB
type MongoMessageStorage struct {
	coll   Collection
	logger *zap.SugaredLogger
}

// NewMongoMessageStorage creates a new MongoDB-based message storage
func NewMongoMessageStorage(coll Collection, logger *zap.SugaredLogger) *MongoMessageStorage {
	return &MongoMessageStorage{coll: coll, logger: logger}
}

// CreateMessage inserts a new message
func (s *MongoMessageStorage) CreateMessage(ctx context.Context, msg *core.Message) error {
	if msg.IsEmpty() {
		return ErrInvalidMessage
	}
	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	metrics.MessagesSent.Inc()
	return nil
}

// GetConversation returns the messages between two users, oldest first
func (s *MongoMessageStorage) GetConversation(ctx context.Context, userA, userB string) ([]core.Message, error) {
	filter := conversationFilter(userA, userB)
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]core.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func conversationFilter(userA, userB string) bson.M {
	return bson.M{"$or": []bson.M{
		{"senderId": userA, "receiverId": userB},
		{"senderId": userB, "receiverId": userA},
	}}
}
