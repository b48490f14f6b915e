package storage

import (
	"context"

	"chatapp/core"
)

// UserStorage persists chat accounts
type UserStorage interface {
	// CreateUser inserts a new user; returns ErrEmailExists on a duplicate email
	CreateUser(ctx context.Context, user *core.User) error
	GetUserByID(ctx context.Context, id string) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	// UpdateProfilePic sets the profile picture and returns the updated user
	UpdateProfilePic(ctx context.Context, id, profilePic string) (*core.User, error)
	// ListUsersExcept returns every user but the one with the given ID, ordered by name
	ListUsersExcept(ctx context.Context, id string) ([]core.User, error)
}

// MessageStorage persists direct messages
type MessageStorage interface {
	CreateMessage(ctx context.Context, msg *core.Message) error
	// GetConversation returns messages exchanged between two users in both
	// directions, oldest first
	GetConversation(ctx context.Context, userA, userB string) ([]core.Message, error)
}

// Database is a connected backend able to hand out the domain stores
type Database interface {
	Users() UserStorage
	Messages() MessageStorage
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
