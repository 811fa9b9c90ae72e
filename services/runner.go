package services

import (
	"context"
	"log"
	"time"

	"forumai/repository"
)

// Runner is the in-process replacement for a host cron facility: a single
// polling loop that finds due tasks, executes them, and re-arms their
// next run time. A second, slower tick runs the overdue-task reconcile
// sweep. Runs are strictly sequential within the loop; overlapping
// execution of the same task cannot happen inside one process.
type Runner struct {
	taskRepo          repository.TaskRepository
	scheduler         SchedulerService
	executor          ExecutorService
	pollInterval      time.Duration
	reconcileInterval time.Duration
}

// NewRunner creates the scheduler loop with its collaborators.
func NewRunner(
	taskRepo repository.TaskRepository,
	scheduler SchedulerService,
	executor ExecutorService,
	pollInterval, reconcileInterval time.Duration,
) *Runner {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if reconcileInterval <= 0 {
		reconcileInterval = time.Hour
	}
	return &Runner{
		taskRepo:          taskRepo,
		scheduler:         scheduler,
		executor:          executor,
		pollInterval:      pollInterval,
		reconcileInterval: reconcileInterval,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()
	reconcile := time.NewTicker(r.reconcileInterval)
	defer reconcile.Stop()

	log.Printf("INFO: [Runner] Started (poll every %v, reconcile every %v).", r.pollInterval, r.reconcileInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: [Runner] Shutting down.")
			return
		case <-poll.C:
			r.processDueTasks(ctx)
		case <-reconcile.C:
			if _, err := r.scheduler.RescheduleOverdueTasks(); err != nil {
				log.Printf("ERROR: [Runner] Reconcile sweep failed: %v", err)
			}
		}
	}
}

func (r *Runner) processDueTasks(ctx context.Context) {
	tasks, err := r.taskRepo.GetDueTasks(time.Now())
	if err != nil {
		log.Printf("ERROR: [Runner] Failed to fetch due tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}
	log.Printf("INFO: [Runner] Found %d due tasks.", len(tasks))

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.executor.RunTask(ctx, task); err != nil {
			// Already recorded in the task log; no retry here, the next
			// cycle is the retry.
			log.Printf("ERROR: [Runner] Task %d ('%s') run failed: %v", task.ID, task.Name, err)
		}
		if err := r.scheduler.ScheduleNextRun(task.ID); err != nil {
			log.Printf("ERROR: [Runner] Failed to re-arm task %d: %v", task.ID, err)
		}
	}
}
