package models

import (
	"time"
)

// AdminLog is the central operator-visible log. Task runs mirror a
// summarized entry here so the admin screen has one place to look.
type AdminLog struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Source    string    `json:"source" gorm:"type:varchar(100);index"`
	Level     string    `json:"level" gorm:"type:varchar(20);index"` // info, warning, error
	Message   string    `json:"message" gorm:"type:text"`
	TaskID    uint      `json:"task_id" gorm:"index;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the AdminLog model.
func (AdminLog) TableName() string {
	return "ai_admin_logs"
}
