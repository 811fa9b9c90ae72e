package repository

import (
	"errors"
	"fmt"
	"log"

	"forumai/models"

	"gorm.io/gorm"
)

// AdminLogRepository defines the interface for the central operator log.
type AdminLogRepository interface {
	Append(entry *models.AdminLog) error
	Recent(limit int) ([]*models.AdminLog, error)
}

type adminLogRepository struct {
	db *gorm.DB
}

// NewAdminLogRepository creates a new instance of AdminLogRepository.
func NewAdminLogRepository(db *gorm.DB) AdminLogRepository {
	return &adminLogRepository{db: db}
}

// Append stores one operator-visible log entry.
func (r *adminLogRepository) Append(entry *models.AdminLog) error {
	if entry == nil {
		return errors.New("admin log entry cannot be nil")
	}
	if err := r.db.Create(entry).Error; err != nil {
		log.Printf("ERROR: [AdminLogRepository] Failed to append entry from '%s': %v", entry.Source, err)
		return fmt.Errorf("failed to append admin log entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (r *adminLogRepository) Recent(limit int) ([]*models.AdminLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []*models.AdminLog
	err := r.db.Order("created_at desc").Limit(limit).Find(&entries).Error
	if err != nil {
		log.Printf("ERROR: [AdminLogRepository] Failed to fetch recent entries: %v", err)
		return nil, fmt.Errorf("failed to fetch recent admin log entries: %w", err)
	}
	return entries, nil
}
