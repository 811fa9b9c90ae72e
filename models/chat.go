package models

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation groups chatbot messages for one user. Each user keeps at
// most a configured number of conversations; the repository evicts the
// oldest one when a new conversation exceeds the cap.
type Conversation struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	UID       string    `json:"uid" gorm:"uniqueIndex;not null"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`
	Messages  []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "ai_conversations"
}

// MessageRole is the speaker of a chat message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one chat turn, ordered by creation time within its
// conversation. Sources holds optional citation metadata returned by the
// assistant (post IDs and resolved URLs).
type Message struct {
	ID             uint           `json:"id" gorm:"primarykey"`
	ConversationID uint           `json:"conversation_id" gorm:"index;not null"`
	Role           MessageRole    `json:"role" gorm:"type:varchar(20);not null"`
	Content        string         `json:"content" gorm:"type:text"`
	Sources        datatypes.JSON `json:"sources"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "ai_messages"
}
