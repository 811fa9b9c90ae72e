package repository

import (
	"testing"
	"time"

	"forumai/models"

	"github.com/stretchr/testify/assert"
)

func TestTaskRepository_CreateAndGet(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	task := &models.Task{Name: "morning topics", Type: models.TaskTypeTopicGenerator, Status: models.TaskStatusDraft}
	assert.NoError(t, repo.CreateTask(task))
	assert.NotZero(t, task.ID)

	got, err := repo.GetTaskByID(task.ID)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "morning topics", got.Name)

	missing, err := repo.GetTaskByID(9999)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, repo.CreateTask(nil))
}

func TestTaskRepository_GetDueTasks(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := &models.Task{Name: "due", Type: models.TaskTypeTopicGenerator, Status: models.TaskStatusActive, NextRunTime: &past}
	notYet := &models.Task{Name: "not yet", Type: models.TaskTypeTopicGenerator, Status: models.TaskStatusActive, NextRunTime: &future}
	paused := &models.Task{Name: "paused", Type: models.TaskTypeTopicGenerator, Status: models.TaskStatusPaused, NextRunTime: &past}
	unarmed := &models.Task{Name: "unarmed", Type: models.TaskTypeTopicGenerator, Status: models.TaskStatusActive}
	for _, task := range []*models.Task{due, notYet, paused, unarmed} {
		assert.NoError(t, repo.CreateTask(task))
	}

	got, err := repo.GetDueTasks(now)
	assert.NoError(t, err)
	if assert.Len(t, got, 1) {
		assert.Equal(t, due.ID, got[0].ID)
	}
}

func TestTaskRepository_GetOverdueActiveTasks(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	now := time.Now()
	stale := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)

	lost := &models.Task{Name: "lost schedule", Type: models.TaskTypeReplyGenerator, Status: models.TaskStatusActive}
	overdue := &models.Task{Name: "overdue", Type: models.TaskTypeReplyGenerator, Status: models.TaskStatusActive, NextRunTime: &stale}
	fine := &models.Task{Name: "fine", Type: models.TaskTypeReplyGenerator, Status: models.TaskStatusActive, NextRunTime: &recent}
	pausedLost := &models.Task{Name: "paused lost", Type: models.TaskTypeReplyGenerator, Status: models.TaskStatusPaused}
	for _, task := range []*models.Task{lost, overdue, fine, pausedLost} {
		assert.NoError(t, repo.CreateTask(task))
	}

	got, err := repo.GetOverdueActiveTasks(now, time.Hour)
	assert.NoError(t, err)
	ids := make([]uint, 0, len(got))
	for _, task := range got {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []uint{lost.ID, overdue.ID}, ids)
}

func TestTaskRepository_LogsAndCredits(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	task := &models.Task{Name: "spender", Type: models.TaskTypeTopicGenerator, Status: models.TaskStatusActive}
	assert.NoError(t, repo.CreateTask(task))

	now := time.Now()
	entries := []*models.TaskLog{
		{TaskID: task.ID, ExecutionTime: now.Add(-30 * time.Hour), Status: models.TaskLogStatusCompleted, CreditsUsed: 7},
		{TaskID: task.ID, ExecutionTime: now.Add(-2 * time.Hour), Status: models.TaskLogStatusCompleted, CreditsUsed: 3},
		{TaskID: task.ID, ExecutionTime: now.Add(-time.Hour), Status: models.TaskLogStatusSkipped, CreditsUsed: 0},
		{TaskID: task.ID, ExecutionTime: now.Add(-10 * time.Minute), Status: models.TaskLogStatusCompleted, CreditsUsed: 2},
	}
	for _, entry := range entries {
		assert.NoError(t, repo.AppendLog(entry))
	}

	t.Run("Sum only counts credits at or after the cutoff", func(t *testing.T) {
		total, err := repo.SumCreditsUsedSince(task.ID, now.Add(-24*time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 5, total)
	})

	t.Run("Sum is zero for a task with no logs in range", func(t *testing.T) {
		total, err := repo.SumCreditsUsedSince(task.ID, now.Add(time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("Logs come back most recent first, capped by the limit", func(t *testing.T) {
		logs, err := repo.GetLogs(task.ID, 2)
		assert.NoError(t, err)
		if assert.Len(t, logs, 2) {
			assert.Equal(t, 2, logs[0].CreditsUsed)
			assert.Equal(t, models.TaskLogStatusSkipped, logs[1].Status)
		}
	})

	t.Run("Entries without a task reference are rejected", func(t *testing.T) {
		assert.Error(t, repo.AppendLog(&models.TaskLog{Status: models.TaskLogStatusCompleted}))
	})
}

func TestTaskRepository_DeleteTaskRemovesLogs(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))
	task := &models.Task{Name: "doomed", Type: models.TaskTypeTagMaintenance, Status: models.TaskStatusActive}
	assert.NoError(t, repo.CreateTask(task))
	assert.NoError(t, repo.AppendLog(&models.TaskLog{TaskID: task.ID, ExecutionTime: time.Now(), Status: models.TaskLogStatusCompleted}))

	assert.NoError(t, repo.DeleteTask(task.ID))

	gone, err := repo.GetTaskByID(task.ID)
	assert.NoError(t, err)
	assert.Nil(t, gone)

	logs, err := repo.GetLogs(task.ID, 10)
	assert.NoError(t, err)
	assert.Empty(t, logs)
}
