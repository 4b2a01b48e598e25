package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Task is a unit of scheduled work.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

// Execute calls f(ctx).
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// TaskInfo describes a scheduled task and its run history.
type TaskInfo struct {
	ID        string
	Interval  time.Duration // zero for cron tasks
	Cron      string        // empty for interval tasks
	Runs      int64
	Failures  int64
	LastRun   time.Time
	LastError error
}

// TaskError reports a failed run of a scheduled task. It is delivered to
// Config.OnError and the log; it never stops later runs.
type TaskError struct {
	Scheduler string
	TaskID    string
	Err       error
	Panicked  bool
}

func (e *TaskError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("scheduler %s: task %q panicked: %v", e.Scheduler, e.TaskID, e.Err)
	}
	return fmt.Sprintf("scheduler %s: task %q failed: %v", e.Scheduler, e.TaskID, e.Err)
}

// Unwrap returns the task's error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
