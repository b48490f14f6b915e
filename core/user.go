package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a registered chat account
type User struct {
	ID         string    `json:"_id" bson:"_id"`
	Email      string    `json:"email" bson:"email"`
	FullName   string    `json:"fullName" bson:"fullName"`
	Password   string    `json:"-" bson:"password"` // bcrypt hash, never serialized to clients
	ProfilePic string    `json:"profilePic" bson:"profilePic"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewUser builds a user with a fresh ID and timestamps. passwordHash must
// already be hashed.
func NewUser(fullName, email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New().String(),
		Email:     NormalizeEmail(email),
		FullName:  strings.TrimSpace(fullName),
		Password:  passwordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeEmail lowercases and trims an email address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
