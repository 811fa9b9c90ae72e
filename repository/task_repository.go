package repository

import (
	"errors"
	"fmt"
	"log"
	"time"

	"forumai/models"

	"gorm.io/gorm"
)

// TaskRepository defines the interface for interacting with AI task and
// task log data.
type TaskRepository interface {
	CreateTask(task *models.Task) error
	GetTaskByID(taskID uint) (*models.Task, error)
	ListTasks(boardID uint) ([]*models.Task, error)
	UpdateTask(task *models.Task) error
	DeleteTask(taskID uint) error
	GetDueTasks(now time.Time) ([]*models.Task, error)
	GetOverdueActiveTasks(now time.Time, staleAfter time.Duration) ([]*models.Task, error)
	AppendLog(entry *models.TaskLog) error
	GetLogs(taskID uint, limit int) ([]*models.TaskLog, error)
	SumCreditsUsedSince(taskID uint, since time.Time) (int, error)
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new instance of TaskRepository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// CreateTask creates a new task in the database.
func (r *taskRepository) CreateTask(task *models.Task) error {
	if task == nil {
		log.Printf("ERROR: [TaskRepository] CreateTask: task cannot be nil")
		return errors.New("task cannot be nil")
	}
	if err := r.db.Create(task).Error; err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to create task '%s': %v", task.Name, err)
		return fmt.Errorf("failed to create task '%s': %w", task.Name, err)
	}
	log.Printf("INFO: [TaskRepository] Created task ID %d ('%s', type %s).", task.ID, task.Name, task.Type)
	return nil
}

// GetTaskByID retrieves a task by its ID. Returns (nil, nil) when the task
// does not exist.
func (r *taskRepository) GetTaskByID(taskID uint) (*models.Task, error) {
	var task models.Task
	err := r.db.First(&task, taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("INFO: [TaskRepository] Task with ID %d not found.", taskID)
			return nil, nil
		}
		log.Printf("ERROR: [TaskRepository] Failed to retrieve task ID %d: %v", taskID, err)
		return nil, fmt.Errorf("failed to retrieve task ID %d: %w", taskID, err)
	}
	return &task, nil
}

// ListTasks retrieves all tasks, optionally filtered by board ID (zero
// means all boards), newest first.
func (r *taskRepository) ListTasks(boardID uint) ([]*models.Task, error) {
	var tasks []*models.Task
	q := r.db.Order("created_at desc")
	if boardID != 0 {
		q = q.Where("board_id = ?", boardID)
	}
	if err := q.Find(&tasks).Error; err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to list tasks for board %d: %v", boardID, err)
		return nil, fmt.Errorf("failed to list tasks for board %d: %w", boardID, err)
	}
	return tasks, nil
}

// UpdateTask updates an existing task in the database.
func (r *taskRepository) UpdateTask(task *models.Task) error {
	if task == nil {
		log.Printf("ERROR: [TaskRepository] UpdateTask: task cannot be nil")
		return errors.New("task cannot be nil")
	}
	if task.ID == 0 {
		log.Printf("ERROR: [TaskRepository] UpdateTask: task ID must be provided for update")
		return errors.New("task ID must be provided for update")
	}
	if err := r.db.Save(task).Error; err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to update task ID %d: %v", task.ID, err)
		return fmt.Errorf("failed to update task ID %d: %w", task.ID, err)
	}
	return nil
}

// DeleteTask permanently deletes a task and its logs. Log deletion is
// explicit rather than relying on database-level cascade, since SQLite
// only enforces it with foreign keys enabled.
func (r *taskRepository) DeleteTask(taskID uint) error {
	log.Printf("INFO: [TaskRepository] Deleting task ID %d and its logs.", taskID)
	if err := r.db.Unscoped().Where("task_id = ?", taskID).Delete(&models.TaskLog{}).Error; err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to delete logs for task ID %d: %v", taskID, err)
		return fmt.Errorf("failed to delete logs for task ID %d: %w", taskID, err)
	}
	if err := r.db.Unscoped().Delete(&models.Task{}, taskID).Error; err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to delete task ID %d: %v", taskID, err)
		return fmt.Errorf("failed to delete task ID %d: %w", taskID, err)
	}
	return nil
}

// GetDueTasks returns active tasks whose next run time has arrived.
func (r *taskRepository) GetDueTasks(now time.Time) ([]*models.Task, error) {
	var tasks []*models.Task
	err := r.db.
		Where("status = ? AND next_run_time IS NOT NULL AND next_run_time <= ?", models.TaskStatusActive, now).
		Order("next_run_time asc").
		Find(&tasks).Error
	if err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to fetch due tasks: %v", err)
		return nil, fmt.Errorf("failed to fetch due tasks: %w", err)
	}
	return tasks, nil
}

// GetOverdueActiveTasks returns active tasks with no next run time, or one
// stale by more than staleAfter. Used by the periodic reconcile sweep to
// re-arm tasks whose schedule was lost mid-update.
func (r *taskRepository) GetOverdueActiveTasks(now time.Time, staleAfter time.Duration) ([]*models.Task, error) {
	var tasks []*models.Task
	cutoff := now.Add(-staleAfter)
	err := r.db.
		Where("status = ? AND (next_run_time IS NULL OR next_run_time < ?)", models.TaskStatusActive, cutoff).
		Find(&tasks).Error
	if err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to fetch overdue tasks: %v", err)
		return nil, fmt.Errorf("failed to fetch overdue tasks: %w", err)
	}
	return tasks, nil
}

// AppendLog records one task execution.
func (r *taskRepository) AppendLog(entry *models.TaskLog) error {
	if entry == nil {
		log.Printf("ERROR: [TaskRepository] AppendLog: entry cannot be nil")
		return errors.New("log entry cannot be nil")
	}
	if entry.TaskID == 0 {
		log.Printf("ERROR: [TaskRepository] AppendLog: entry must reference a task")
		return errors.New("log entry must reference a task")
	}
	if err := r.db.Create(entry).Error; err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to append log for task ID %d: %v", entry.TaskID, err)
		return fmt.Errorf("failed to append log for task ID %d: %w", entry.TaskID, err)
	}
	return nil
}

// GetLogs returns the most recent log entries for a task.
func (r *taskRepository) GetLogs(taskID uint, limit int) ([]*models.TaskLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []*models.TaskLog
	err := r.db.
		Where("task_id = ?", taskID).
		Order("execution_time desc").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to fetch logs for task ID %d: %v", taskID, err)
		return nil, fmt.Errorf("failed to fetch logs for task ID %d: %w", taskID, err)
	}
	return logs, nil
}

// SumCreditsUsedSince sums credits recorded in task logs at or after the
// given time. Backs the daily credit-threshold guard.
func (r *taskRepository) SumCreditsUsedSince(taskID uint, since time.Time) (int, error) {
	var total int64
	err := r.db.Model(&models.TaskLog{}).
		Where("task_id = ? AND execution_time >= ?", taskID, since).
		Select("COALESCE(SUM(credits_used), 0)").
		Scan(&total).Error
	if err != nil {
		log.Printf("ERROR: [TaskRepository] Failed to sum credits for task ID %d: %v", taskID, err)
		return 0, fmt.Errorf("failed to sum credits for task ID %d: %w", taskID, err)
	}
	return int(total), nil
}
