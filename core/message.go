package core

import (
	"time"

	"github.com/google/uuid"
)

// Message is a direct message between two users. At least one of Text or
// Image is non-empty.
type Message struct {
	ID         string    `json:"_id" bson:"_id"`
	SenderID   string    `json:"senderId" bson:"senderId"`
	ReceiverID string    `json:"receiverId" bson:"receiverId"`
	Text       string    `json:"text,omitempty" bson:"text,omitempty"`
	Image      string    `json:"image,omitempty" bson:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewMessage builds a message with a fresh ID and timestamps
func NewMessage(senderID, receiverID, text, image string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsEmpty reports whether the message carries neither text nor an image
func (m *Message) IsEmpty() bool {
	return m.Text == "" && m.Image == ""
}
