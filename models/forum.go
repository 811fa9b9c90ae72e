package models

import (
	"time"
)

// TopicStatus mirrors the forum's topic visibility states.
type TopicStatus string

const (
	TopicStatusApproved   TopicStatus = "approved"
	TopicStatusUnapproved TopicStatus = "unapproved"
	TopicStatusPrivate    TopicStatus = "private"
	TopicStatusClosed     TopicStatus = "closed"
)

// Topic is a forum thread. Tags is a comma-separated list (the forum's own
// storage convention); TaskTag is a marker holding the ID of the tag
// maintenance task that last processed the topic, zero when untouched.
type Topic struct {
	ID          uint        `json:"id" gorm:"primarykey"`
	ForumID     uint        `json:"forum_id" gorm:"index;not null"`
	Title       string      `json:"title" gorm:"not null"`
	Status      TopicStatus `json:"status" gorm:"type:varchar(50);default:'approved';index"`
	UserID      uint        `json:"user_id" gorm:"index"`
	Tags        string      `json:"tags" gorm:"type:text"`
	TaskTag     uint        `json:"task_tag" gorm:"default:0;index"`
	FirstPostID uint        `json:"first_post_id"`
	LastPostID  uint        `json:"last_post_id"`
	PostCount   int         `json:"post_count" gorm:"default:0"`
	CreatedAt   time.Time   `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
	Posts       []Post      `json:"posts,omitempty" gorm:"foreignKey:TopicID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// TableName specifies the table name for the Topic model.
func (Topic) TableName() string {
	return "topics"
}

// Post is a single message inside a topic. ParentID is non-zero for
// replies threaded under another post.
type Post struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	TopicID     uint      `json:"topic_id" gorm:"index;not null"`
	ParentID    uint      `json:"parent_id" gorm:"default:0"`
	Title       string    `json:"title"`
	Body        string    `json:"body" gorm:"type:text;not null"`
	UserID      uint      `json:"user_id" gorm:"index"`
	IsFirstPost bool      `json:"is_first_post" gorm:"default:false"`
	Status      string    `json:"status" gorm:"type:varchar(50);default:'approved'"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Post model.
func (Post) TableName() string {
	return "posts"
}
