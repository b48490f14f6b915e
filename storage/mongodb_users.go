package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatapp/core"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoUserStorage implements UserStorage using MongoDB
type MongoUserStorage struct {
	coll   Collection
	logger *zap.SugaredLogger
}

// NewMongoUserStorage creates a new MongoDB-based user storage
func NewMongoUserStorage(coll Collection, logger *zap.SugaredLogger) *MongoUserStorage {
	return &MongoUserStorage{coll: coll, logger: logger}
}

// CreateUser inserts a new user
func (s *MongoUserStorage) CreateUser(ctx context.Context, user *core.User) error {
	user.Email = core.NormalizeEmail(user.Email)
	if _, err := s.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *MongoUserStorage) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *MongoUserStorage) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findOne(ctx, bson.M{"email": core.NormalizeEmail(email)})
}

// UpdateProfilePic sets the profile picture and returns the updated user
func (s *MongoUserStorage) UpdateProfilePic(ctx context.Context, id, profilePic string) (*core.User, error) {
	update := bson.M{"$set": bson.M{
		"profilePic": profilePic,
		"updatedAt":  time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user core.User
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// ListUsersExcept returns every user but the one with the given ID
func (s *MongoUserStorage) ListUsersExcept(ctx context.Context, id string) ([]core.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "fullName", Value: 1}}).
		SetProjection(bson.M{"password": 0})

	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": id}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]core.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (s *MongoUserStorage) findOne(ctx context.Context, filter bson.M) (*core.User, error) {
	var user core.User
	if err := s.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
