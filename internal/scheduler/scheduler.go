package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task interface for scheduled tasks
type Task interface {
	Run(ctx context.Context) error
	Interval() time.Duration
	Name() string
}

// Scheduler runs each task on its own ticker, independently of the others
type Scheduler struct {
	tasks []Task
}

// New creates a new task scheduler
func New(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// AddTask adds a task to the scheduler. Tasks added after Run has started are not run.
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

// Run starts every task and blocks until ctx is cancelled. Task errors are logged,
// never fatal; the returned error is always ctx's.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Starting task scheduler", "task_count", len(s.tasks))

	eg, ctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		task := task
		eg.Go(func() error {
			return runTask(ctx, task)
		})
	}
	err := eg.Wait()

	slog.Info("Task scheduler stopped")
	return err
}

// runTask runs a single task on its schedule
func runTask(ctx context.Context, task Task) error {
	ticker := time.NewTicker(task.Interval())
	defer ticker.Stop()

	slog.Debug("Task scheduled", "task", task.Name(), "interval", task.Interval())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// A tick and cancellation can be ready together
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := task.Run(ctx); err != nil {
				slog.Error("Error running task", "task", task.Name(), "error", err)
			}
		}
	}
}
