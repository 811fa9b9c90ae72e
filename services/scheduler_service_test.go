package services

import (
	"testing"
	"time"

	"forumai/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockTaskRepository is a mock type for the repository.TaskRepository
// interface.
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) CreateTask(task *models.Task) error {
	args := m.Called(task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetTaskByID(taskID uint) (*models.Task, error) {
	args := m.Called(taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) ListTasks(boardID uint) ([]*models.Task, error) {
	args := m.Called(boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) UpdateTask(task *models.Task) error {
	args := m.Called(task)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteTask(taskID uint) error {
	args := m.Called(taskID)
	return args.Error(0)
}

func (m *MockTaskRepository) GetDueTasks(now time.Time) ([]*models.Task, error) {
	args := m.Called(now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetOverdueActiveTasks(now time.Time, staleAfter time.Duration) ([]*models.Task, error) {
	args := m.Called(now, staleAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) AppendLog(entry *models.TaskLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockTaskRepository) GetLogs(taskID uint, limit int) ([]*models.TaskLog, error) {
	args := m.Called(taskID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TaskLog), args.Error(1)
}

func (m *MockTaskRepository) SumCreditsUsedSince(taskID uint, since time.Time) (int, error) {
	args := m.Called(taskID, since)
	return args.Int(0), args.Error(1)
}

// weekdaysOnly is Monday through Friday.
var weekdaysOnly = []int{1, 2, 3, 4, 5}

func TestSchedulerService_CalculateNextRunTime(t *testing.T) {
	service := NewSchedulerService(new(MockTaskRepository), time.Hour)

	// 2025-01-04 is a Saturday; 2025-01-06 is a Monday.
	saturdayEvening := time.Date(2025, 1, 4, 18, 0, 0, 0, time.UTC)

	t.Run("Daily frequency outside the window lands on the next allowed day inside the window", func(t *testing.T) {
		cfg := &models.TaskConfig{
			Frequency:        "daily",
			ActiveDays:       weekdaysOnly,
			ActiveHoursStart: "09:00",
			ActiveHoursEnd:   "17:00",
		}
		next, ok := service.CalculateNextRunTime(cfg, saturdayEvening)
		assert.True(t, ok)
		assert.Equal(t, time.Monday, next.Weekday())
		assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("Candidate before the window on an allowed day snaps to the window start", func(t *testing.T) {
		cfg := &models.TaskConfig{
			Frequency:        "hourly",
			ActiveDays:       weekdaysOnly,
			ActiveHoursStart: "09:00",
			ActiveHoursEnd:   "17:00",
		}
		// Monday 06:30 -> candidate Monday 07:30, before the window.
		mondayEarly := time.Date(2025, 1, 6, 6, 30, 0, 0, time.UTC)
		next, ok := service.CalculateNextRunTime(cfg, mondayEarly)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("Candidate inside the window is returned unchanged", func(t *testing.T) {
		cfg := &models.TaskConfig{
			Frequency:        "3hours",
			ActiveDays:       weekdaysOnly,
			ActiveHoursStart: "09:00",
			ActiveHoursEnd:   "17:00",
		}
		mondayMorning := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
		next, ok := service.CalculateNextRunTime(cfg, mondayMorning)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC), next)
	})

	t.Run("Once schedule returns the next instant inside the window", func(t *testing.T) {
		cfg := &models.TaskConfig{
			ScheduleType:     models.ScheduleTypeOnce,
			ActiveDays:       weekdaysOnly,
			ActiveHoursStart: "09:00",
			ActiveHoursEnd:   "17:00",
		}
		next, ok := service.CalculateNextRunTime(cfg, saturdayEvening)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("Legacy value/unit pair is honored when no frequency token is set", func(t *testing.T) {
		cfg := &models.TaskConfig{IntervalValue: 90, IntervalUnit: "minutes"}
		now := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
		next, ok := service.CalculateNextRunTime(cfg, now)
		assert.True(t, ok)
		assert.Equal(t, now.Add(90*time.Minute), next)
	})

	t.Run("Unparseable configuration yields not-scheduled, not an error", func(t *testing.T) {
		cfg := &models.TaskConfig{Frequency: "fortnightly"}
		_, ok := service.CalculateNextRunTime(cfg, saturdayEvening)
		assert.False(t, ok)
	})

	t.Run("Window no timestamp can satisfy means no slot within the search horizon", func(t *testing.T) {
		// An inverted window is never satisfied.
		cfg := &models.TaskConfig{
			Frequency:        "daily",
			ActiveHoursStart: "23:00",
			ActiveHoursEnd:   "01:00",
		}
		_, ok := service.CalculateNextRunTime(cfg, saturdayEvening)
		assert.False(t, ok)
	})
}

func TestSchedulerService_ScheduleNextRun(t *testing.T) {
	t.Run("Active recurring task gets a next run time persisted", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		service := NewSchedulerService(mockRepo, time.Hour)

		cfgBlob, err := models.EncodeTaskConfig(&models.TaskConfig{Frequency: "daily"})
		assert.NoError(t, err)
		task := &models.Task{ID: 1, Name: "daily digest", Status: models.TaskStatusActive, Config: cfgBlob}

		mockRepo.On("GetTaskByID", uint(1)).Return(task, nil).Once()
		mockRepo.On("UpdateTask", mock.MatchedBy(func(tsk *models.Task) bool {
			return tsk.ID == 1 && tsk.NextRunTime != nil && tsk.NextRunTime.After(time.Now())
		})).Return(nil).Once()

		assert.NoError(t, service.ScheduleNextRun(1))
		mockRepo.AssertExpectations(t)
	})

	t.Run("Paused task is a no-op", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		service := NewSchedulerService(mockRepo, time.Hour)

		task := &models.Task{ID: 2, Status: models.TaskStatusPaused}
		mockRepo.On("GetTaskByID", uint(2)).Return(task, nil).Once()

		assert.NoError(t, service.ScheduleNextRun(2))
		mockRepo.AssertNotCalled(t, "UpdateTask", mock.Anything)
	})

	t.Run("Event-triggered task gets any stale timer cleared", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		service := NewSchedulerService(mockRepo, time.Hour)

		stale := time.Now().Add(-time.Hour)
		cfgBlob, _ := models.EncodeTaskConfig(&models.TaskConfig{RunOnApproval: true})
		task := &models.Task{ID: 3, Status: models.TaskStatusActive, Config: cfgBlob, NextRunTime: &stale}

		mockRepo.On("GetTaskByID", uint(3)).Return(task, nil).Once()
		mockRepo.On("UpdateTask", mock.MatchedBy(func(tsk *models.Task) bool {
			return tsk.ID == 3 && tsk.NextRunTime == nil
		})).Return(nil).Once()

		assert.NoError(t, service.ScheduleNextRun(3))
		mockRepo.AssertExpectations(t)
	})

	t.Run("One-shot task that already ran is retired, not re-armed", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		service := NewSchedulerService(mockRepo, time.Hour)

		ran := time.Now().Add(-time.Minute)
		armed := time.Now().Add(-time.Second)
		cfgBlob, _ := models.EncodeTaskConfig(&models.TaskConfig{ScheduleType: models.ScheduleTypeOnce})
		task := &models.Task{ID: 5, Name: "launch post", Status: models.TaskStatusActive, Config: cfgBlob,
			TotalRuns: 1, LastRunTime: &ran, NextRunTime: &armed}

		mockRepo.On("GetTaskByID", uint(5)).Return(task, nil).Once()
		mockRepo.On("UpdateTask", mock.MatchedBy(func(tsk *models.Task) bool {
			return tsk.ID == 5 && tsk.NextRunTime == nil
		})).Return(nil).Once()

		assert.NoError(t, service.ScheduleNextRun(5))
		mockRepo.AssertExpectations(t)
	})

	t.Run("Retired one-shot task stays untouched on later passes", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		service := NewSchedulerService(mockRepo, time.Hour)

		ran := time.Now().Add(-time.Hour)
		cfgBlob, _ := models.EncodeTaskConfig(&models.TaskConfig{ScheduleType: models.ScheduleTypeOnce})
		task := &models.Task{ID: 6, Status: models.TaskStatusActive, Config: cfgBlob, TotalRuns: 1, LastRunTime: &ran}

		mockRepo.On("GetTaskByID", uint(6)).Return(task, nil).Once()

		assert.NoError(t, service.ScheduleNextRun(6))
		mockRepo.AssertNotCalled(t, "UpdateTask", mock.Anything)
	})

	t.Run("Unschedulable config clears the next run time rather than failing", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		service := NewSchedulerService(mockRepo, time.Hour)

		old := time.Now().Add(-time.Hour)
		cfgBlob, _ := models.EncodeTaskConfig(&models.TaskConfig{Frequency: "never"})
		task := &models.Task{ID: 4, Status: models.TaskStatusActive, Config: cfgBlob, NextRunTime: &old}

		mockRepo.On("GetTaskByID", uint(4)).Return(task, nil).Once()
		mockRepo.On("UpdateTask", mock.MatchedBy(func(tsk *models.Task) bool {
			return tsk.NextRunTime == nil
		})).Return(nil).Once()

		assert.NoError(t, service.ScheduleNextRun(4))
		mockRepo.AssertExpectations(t)
	})
}

func TestSchedulerService_RescheduleOverdueTasks(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	service := NewSchedulerService(mockRepo, time.Hour)

	cfgBlob, _ := models.EncodeTaskConfig(&models.TaskConfig{Frequency: "hourly"})
	overdue := &models.Task{ID: 7, Name: "stale", Status: models.TaskStatusActive, Config: cfgBlob}

	mockRepo.On("GetOverdueActiveTasks", mock.AnythingOfType("time.Time"), time.Hour).
		Return([]*models.Task{overdue}, nil).Once()
	mockRepo.On("GetTaskByID", uint(7)).Return(overdue, nil).Once()
	mockRepo.On("UpdateTask", mock.AnythingOfType("*models.Task")).Return(nil).Once()

	rearmed, err := service.RescheduleOverdueTasks()
	assert.NoError(t, err)
	assert.Equal(t, 1, rearmed)
	mockRepo.AssertExpectations(t)
}
