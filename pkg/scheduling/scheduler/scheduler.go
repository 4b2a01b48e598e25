package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	tkcontext "github.com/vnykmshr/tokova/pkg/common/context"
	tkerrors "github.com/vnykmshr/tokova/pkg/common/errors"
	"github.com/vnykmshr/tokova/pkg/common/validation"
	"github.com/vnykmshr/tokova/pkg/metrics"
)

// Scheduler runs tasks on a fixed interval or a cron schedule.
//
// Each task runs on its own goroutine; runs of the same task never overlap.
// A failing or panicking run is reported and the task keeps its schedule.
type Scheduler interface {
	// ScheduleRepeating runs task every interval, first run one interval after start.
	ScheduleRepeating(id string, task Task, interval time.Duration) error

	// ScheduleCron runs task on a cron schedule (seconds field first, descriptors
	// such as "@every 10s" accepted).
	ScheduleCron(id string, cronExpr string, task Task) error

	// Cancel removes a task. It returns false if no such task exists.
	// An in-flight run is not waited for; a task scheduled again under the
	// same ID starts only after that run returns.
	Cancel(id string) bool

	// List returns all tasks ordered by ID.
	List() []TaskInfo

	// Start begins running scheduled tasks. A stopped scheduler cannot be restarted.
	Start() error

	// Stop cancels all tasks and returns a channel that is closed once every
	// in-flight run has returned. Calling Stop again returns the same channel.
	Stop() <-chan struct{}

	// Running reports whether the scheduler has been started and not stopped.
	Running() bool
}

// Config holds scheduler configuration.
type Config struct {
	// Name labels logs and metrics (default "default").
	Name string

	// Location is used to evaluate cron expressions (default time.Local).
	Location *time.Location

	// TaskTimeout bounds a single run. Zero means no limit.
	TaskTimeout time.Duration

	// Logger receives run failures. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics records runs when non-nil.
	Metrics *metrics.Registry

	// OnError is called after every failed run.
	OnError func(err *TaskError)
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

const maxIDLength = 255

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCron reports whether expr is a cron expression ScheduleCron accepts.
func ValidateCron(expr string) error {
	if expr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

type scheduledTask struct {
	id       string
	task     Task
	interval time.Duration
	cronExpr string
	schedule cron.Schedule
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	runs     int64
	failures int64
	lastRun  time.Time
	lastErr  error
}

type scheduler struct {
	name        string
	location    *time.Location
	taskTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Registry
	onError     func(err *TaskError)

	mu       sync.Mutex
	tasks    map[string]*scheduledTask
	retiring map[string]chan struct{} // cancelled tasks whose goroutine is still running
	state    state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a scheduler with default configuration.
func New() Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) Scheduler {
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &scheduler{
		name:        name,
		location:    location,
		taskTimeout: cfg.TaskTimeout,
		logger:      logger.With(zap.String("scheduler", name)),
		metrics:     cfg.Metrics,
		onError:     cfg.OnError,
		tasks:       make(map[string]*scheduledTask),
		retiring:    make(map[string]chan struct{}),
		stopped:     make(chan struct{}),
	}
}

func (s *scheduler) ScheduleRepeating(id string, task Task, interval time.Duration) error {
	if err := validateTask(id, task); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	return s.add(&scheduledTask{
		id:       id,
		task:     task,
		interval: interval,
	})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, task Task) error {
	if err := validateTask(id, task); err != nil {
		return err
	}
	if err := ValidateCron(cronExpr); err != nil {
		return err
	}
	schedule, _ := cronParser.Parse(cronExpr)

	return s.add(&scheduledTask{
		id:       id,
		task:     task,
		cronExpr: cronExpr,
		schedule: schedule,
	})
}

func validateTask(id string, task Task) error {
	if err := validation.ValidateNotEmpty("scheduler", "taskID", id); err != nil {
		return err
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("task ID too long (max %d characters)", maxIDLength)
	}
	return validation.ValidateNotNil("scheduler", "task", task)
}

func (s *scheduler) add(t *scheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateStopped {
		return fmt.Errorf("cannot schedule %q: %w", t.id, tkerrors.ErrClosed)
	}
	if _, exists := s.tasks[t.id]; exists {
		return fmt.Errorf("task with ID %q already exists, use a different ID or cancel the existing task first", t.id)
	}

	s.tasks[t.id] = t
	if s.state == stateRunning {
		s.launch(t)
	}
	return nil
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return false
	}
	if t.cancel != nil {
		t.cancel()
		s.retiring[id] = t.done
	}
	delete(s.tasks, id)
	return true
}

func (s *scheduler) List() []TaskInfo {
	s.mu.Lock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		infos = append(infos, TaskInfo{
			ID:        t.id,
			Interval:  t.interval,
			Cron:      t.cronExpr,
			Runs:      t.runs,
			Failures:  t.failures,
			LastRun:   t.lastRun,
			LastError: t.lastErr,
		})
		t.mu.Unlock()
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return fmt.Errorf("scheduler already running, call Stop() first")
	case stateStopped:
		return fmt.Errorf("scheduler cannot be restarted: %w", tkerrors.ErrClosed)
	}

	s.state = stateRunning
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, t := range s.tasks {
		s.launch(t)
	}
	return nil
}

func (s *scheduler) Stop() <-chan struct{} {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state = stateStopped
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		go func() {
			s.wg.Wait()
			close(s.stopped)
		}()
	})
	return s.stopped
}

func (s *scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// launch starts the goroutine for t. Caller must hold s.mu with the
// scheduler running.
func (s *scheduler) launch(t *scheduledTask) {
	ctx, cancel := context.WithCancel(s.ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	s.wg.Add(1)
	go s.run(ctx, t, s.retiring[t.id])
}

// run drives t until ctx ends. prev, when set, is the done channel of a
// cancelled task with the same ID; t does not start until it closes.
func (s *scheduler) run(ctx context.Context, t *scheduledTask, prev <-chan struct{}) {
	defer s.wg.Done()
	defer s.retire(t)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	if t.schedule == nil {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.execute(ctx, t)
			}
		}
	}

	for {
		now := time.Now().In(s.location)
		next := t.schedule.Next(now)
		if next.IsZero() {
			s.logger.Warn("cron schedule never fires again", zap.String("task", t.id), zap.String("cron", t.cronExpr))
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(ctx, t)
		}
	}
}

func (s *scheduler) retire(t *scheduledTask) {
	close(t.done)

	s.mu.Lock()
	if s.retiring[t.id] == t.done {
		delete(s.retiring, t.id)
	}
	s.mu.Unlock()
}

func (s *scheduler) execute(ctx context.Context, t *scheduledTask) {
	// Both select cases may be ready at once; never start a run after Stop.
	if tkcontext.IsCanceled(ctx) {
		return
	}

	start := time.Now()
	panicked, err := s.runTask(ctx, t)
	elapsed := time.Since(start)

	// A run cut short by Stop or Cancel is not a failure.
	if err != nil && tkcontext.IsCanceled(ctx) && tkcontext.IsContextError(err) {
		err = nil
	}

	t.mu.Lock()
	t.runs++
	t.lastRun = start
	t.lastErr = err
	if err != nil {
		t.failures++
	}
	t.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TicksExecuted.WithLabelValues(s.name, t.id).Inc()
		s.metrics.TickDuration.WithLabelValues(s.name, t.id).Observe(elapsed.Seconds())
		if err != nil {
			s.metrics.TicksFailed.WithLabelValues(s.name, t.id).Inc()
		}
	}

	if err == nil {
		return
	}

	terr := &TaskError{Scheduler: s.name, TaskID: t.id, Err: err, Panicked: panicked}
	s.logger.Error("scheduled task failed",
		zap.String("task", t.id),
		zap.Bool("panicked", panicked),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	s.report(terr)
}

func (s *scheduler) runTask(ctx context.Context, t *scheduledTask) (panicked bool, err error) {
	runCtx, cancel := tkcontext.WithTimeoutOrCancel(ctx, s.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			panicked, err = true, fmt.Errorf("%v", r)
		}
	}()

	err = t.task.Execute(runCtx)
	if err != nil && s.taskTimeout > 0 && !tkcontext.IsCanceled(ctx) &&
		errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %v: %w", tkerrors.ErrTimeout, s.taskTimeout, err)
	}
	return false, err
}

func (s *scheduler) report(terr *TaskError) {
	if s.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("OnError hook panicked", zap.String("task", terr.TaskID), zap.Any("panic", r))
		}
	}()
	s.onError(terr)
}

// IsTaskError reports whether err is or wraps a *TaskError.
func IsTaskError(err error) bool {
	var terr *TaskError
	return errors.As(err, &terr)
}
