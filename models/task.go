package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskType defines the category of an AI task.
type TaskType string

const (
	TaskTypeTopicGenerator TaskType = "topic_generator"
	TaskTypeReplyGenerator TaskType = "reply_generator"
	TaskTypeTagMaintenance TaskType = "tag_maintenance"
)

// TaskStatus defines the possible statuses for an AI task.
type TaskStatus string

const (
	TaskStatusDraft  TaskStatus = "draft"
	TaskStatusActive TaskStatus = "active"
	TaskStatusPaused TaskStatus = "paused"
	TaskStatusError  TaskStatus = "error"
)

// Task represents a scheduled AI content task (topic generation, reply
// generation or tag maintenance). Config is a per-type JSON blob; use
// DecodeTaskConfig to get a typed view with defaults filled in.
type Task struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	Name         string         `json:"name" gorm:"not null"`
	Type         TaskType       `json:"type" gorm:"type:varchar(50);index;not null"`
	Status       TaskStatus     `json:"status" gorm:"type:varchar(50);default:'draft';not null;index"`
	BoardID      uint           `json:"board_id" gorm:"default:0"`
	Config       datatypes.JSON `json:"config"`
	CreatedBy    uint           `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	LastRunTime  *time.Time     `json:"last_run_time"`
	NextRunTime  *time.Time     `json:"next_run_time" gorm:"index"`
	TotalRuns    int            `json:"total_runs" gorm:"default:0"`
	ItemsCreated int            `json:"items_created" gorm:"default:0"`
	CreditsUsed  int            `json:"credits_used" gorm:"default:0"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
	Logs         []TaskLog      `json:"-" gorm:"foreignKey:TaskID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// TableName specifies the table name for the Task model.
func (Task) TableName() string {
	return "ai_tasks"
}

// TaskLogStatus defines the outcome recorded for a single task run.
type TaskLogStatus string

const (
	TaskLogStatusCompleted TaskLogStatus = "completed"
	TaskLogStatusError     TaskLogStatus = "error"
	TaskLogStatusSkipped   TaskLogStatus = "skipped"
)

// TaskLog is an append-only record of one task execution. Logs are owned
// by their Task and cascade-deleted with it.
type TaskLog struct {
	ID                uint           `json:"id" gorm:"primarykey"`
	TaskID            uint           `json:"task_id" gorm:"index;not null"`
	ExecutionTime     time.Time      `json:"execution_time" gorm:"index"`
	Status            TaskLogStatus  `json:"status" gorm:"type:varchar(50);not null"`
	ItemsCreated      int            `json:"items_created" gorm:"default:0"`
	CreditsUsed       int            `json:"credits_used" gorm:"default:0"`
	ExecutionDuration int64          `json:"execution_duration"` // milliseconds
	ErrorMessage      string         `json:"error_message" gorm:"type:text"`
	ResultData        datatypes.JSON `json:"result_data"`
}

// TableName specifies the table name for the TaskLog model.
func (TaskLog) TableName() string {
	return "ai_task_logs"
}
