package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"forumai/models"
	"forumai/repository"
)

// How far forward the scheduler will push a candidate run time looking
// for a slot that satisfies the active days/hours window.
const maxWindowSearchDays = 14

// SchedulerService computes task run times and keeps the persisted
// next_run_time column armed.
type SchedulerService interface {
	// CalculateNextRunTime returns the next valid execution time for the
	// given config starting from now, or false when the configuration
	// yields no interval or no slot inside the active window.
	CalculateNextRunTime(cfg *models.TaskConfig, now time.Time) (time.Time, bool)
	// ScheduleNextRun recomputes and persists a task's next run time.
	// It is a no-op for tasks that are not active or are event-triggered.
	ScheduleNextRun(taskID uint) error
	// RescheduleOverdueTasks re-arms active tasks whose next run time was
	// lost or went stale. Returns the number of tasks re-armed.
	RescheduleOverdueTasks() (int, error)
}

type schedulerService struct {
	taskRepo   repository.TaskRepository
	staleAfter time.Duration
}

// NewSchedulerService creates a scheduler service. staleAfter is how far
// past a next_run_time may drift before the reconcile sweep considers it
// lost and recomputes it.
func NewSchedulerService(taskRepo repository.TaskRepository, staleAfter time.Duration) SchedulerService {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &schedulerService{taskRepo: taskRepo, staleAfter: staleAfter}
}

// frequencyDuration maps a frequency token to its interval.
func frequencyDuration(token string) (time.Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "hourly":
		return time.Hour, true
	case "3hours":
		return 3 * time.Hour, true
	case "6hours":
		return 6 * time.Hour, true
	case "daily":
		return 24 * time.Hour, true
	case "3days":
		return 3 * 24 * time.Hour, true
	case "weekly":
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// legacyDuration maps the old (value, unit) schedule form to an interval.
func legacyDuration(value int, unit string) (time.Duration, bool) {
	if value <= 0 {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "minute", "minutes":
		return time.Duration(value) * time.Minute, true
	case "hour", "hours":
		return time.Duration(value) * time.Hour, true
	case "day", "days":
		return time.Duration(value) * 24 * time.Hour, true
	case "week", "weeks":
		return time.Duration(value) * 7 * 24 * time.Hour, true
	}
	return 0, false
}

func (s *schedulerService) CalculateNextRunTime(cfg *models.TaskConfig, now time.Time) (time.Time, bool) {
	if cfg == nil {
		return time.Time{}, false
	}

	var candidate time.Time
	if cfg.ScheduleType == models.ScheduleTypeOnce {
		candidate = now
	} else {
		interval, ok := frequencyDuration(cfg.Frequency)
		if !ok {
			interval, ok = legacyDuration(cfg.IntervalValue, cfg.IntervalUnit)
		}
		if !ok {
			// Swallow-and-skip: an unparseable schedule means "not
			// scheduled", never a hard failure.
			log.Printf("WARN: [SchedulerService] No interval derivable from config (frequency='%s', legacy=%d %s).",
				cfg.Frequency, cfg.IntervalValue, cfg.IntervalUnit)
			return time.Time{}, false
		}
		candidate = now.Add(interval)
	}

	return clampToActiveWindow(cfg, candidate)
}

// clampToActiveWindow pushes candidate forward, day by day, until it lands
// on an allowed weekday inside the time-of-day window. A candidate before
// the window's opening time on an allowed day snaps to the window start.
func clampToActiveWindow(cfg *models.TaskConfig, candidate time.Time) (time.Time, bool) {
	for i := 0; i <= maxWindowSearchDays; i++ {
		if cfg.InActiveWindow(candidate) {
			return candidate, true
		}
		windowStart := cfg.WindowStart(candidate)
		if dayAllowedFor(cfg, candidate) && candidate.Before(windowStart) && cfg.InActiveWindow(windowStart) {
			return windowStart, true
		}
		// Past the window (or wrong day): try the next day at the window
		// opening time.
		next := candidate.AddDate(0, 0, 1)
		candidate = cfg.WindowStart(time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location()))
	}
	log.Printf("WARN: [SchedulerService] No slot inside the active window within %d days.", maxWindowSearchDays)
	return time.Time{}, false
}

func dayAllowedFor(cfg *models.TaskConfig, t time.Time) bool {
	if len(cfg.ActiveDays) == 0 {
		return true
	}
	day := int(t.Weekday())
	for _, d := range cfg.ActiveDays {
		if d == day {
			return true
		}
	}
	return false
}

func (s *schedulerService) ScheduleNextRun(taskID uint) error {
	task, err := s.taskRepo.GetTaskByID(taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %d for scheduling: %w", taskID, err)
	}
	if task == nil {
		log.Printf("WARN: [SchedulerService] ScheduleNextRun: task %d not found.", taskID)
		return nil
	}
	if task.Status != models.TaskStatusActive {
		return nil
	}

	cfg, err := models.DecodeTaskConfig(task.Config)
	if err != nil {
		// Same swallow-and-skip policy as an unparseable schedule: the
		// task simply stops advancing until an operator fixes it.
		log.Printf("WARN: [SchedulerService] Task %d has malformed config, leaving it unscheduled: %v", task.ID, err)
		return nil
	}
	if cfg.RunOnApproval {
		// Event-triggered tasks are never polled; make sure no stale
		// timer is left armed.
		if task.NextRunTime != nil {
			task.NextRunTime = nil
			return s.taskRepo.UpdateTask(task)
		}
		return nil
	}

	if cfg.ScheduleType == models.ScheduleTypeOnce && (task.TotalRuns > 0 || task.LastRunTime != nil) {
		// A one-shot task that has already run is finished; re-arming it
		// would make it due again on the next poll.
		if task.NextRunTime != nil {
			log.Printf("INFO: [SchedulerService] One-shot task %d ('%s') has run; retiring its schedule.", task.ID, task.Name)
			task.NextRunTime = nil
			return s.taskRepo.UpdateTask(task)
		}
		return nil
	}

	next, ok := s.CalculateNextRunTime(cfg, time.Now())
	if !ok {
		log.Printf("WARN: [SchedulerService] Task %d ('%s') could not be scheduled; clearing next run time.", task.ID, task.Name)
		task.NextRunTime = nil
		return s.taskRepo.UpdateTask(task)
	}

	task.NextRunTime = &next
	if err := s.taskRepo.UpdateTask(task); err != nil {
		return fmt.Errorf("failed to persist next run time for task %d: %w", task.ID, err)
	}
	log.Printf("INFO: [SchedulerService] Task %d ('%s') scheduled for %s.", task.ID, task.Name, next.Format(time.RFC3339))
	return nil
}

func (s *schedulerService) RescheduleOverdueTasks() (int, error) {
	tasks, err := s.taskRepo.GetOverdueActiveTasks(time.Now(), s.staleAfter)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch overdue tasks: %w", err)
	}
	rearmed := 0
	for _, task := range tasks {
		if err := s.ScheduleNextRun(task.ID); err != nil {
			log.Printf("ERROR: [SchedulerService] Failed to reschedule overdue task %d: %v", task.ID, err)
			continue
		}
		rearmed++
	}
	if rearmed > 0 {
		log.Printf("INFO: [SchedulerService] Reconcile sweep re-armed %d overdue tasks.", rearmed)
	}
	return rearmed, nil
}
