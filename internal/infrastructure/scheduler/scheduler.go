// Package scheduler runs background jobs for the tracker: periodic journal
// archiving and deferred classifier retraining. Nothing here runs on the
// observation hot path.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of background work.
type Job interface {
	// Name uniquely identifies the job.
	Name() string

	// Description explains what the job does.
	Description() string

	// Run executes the job. Implementations must honor ctx cancellation.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time strictly after the given time.
	Next(after time.Time) time.Time
}

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Next implements Schedule.
func (s IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.Interval)
}

// JobResult records one job execution.
type JobResult struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

const historyLimit = 100

type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
}

// Scheduler runs registered jobs on their schedules.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	history []JobResult
	logger  *slog.Logger

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// OnComplete, when set, is invoked after every job run. Set before Start.
	OnComplete func(JobResult)
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   make(map[string]*scheduledJob),
		logger: logger,
	}
}

// Register adds a job. Registering a name twice replaces the schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil || schedule == nil {
		return ErrInvalidJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.Name()] = &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
	}
	s.logger.Info("job registered", "job", job.Name(), "description", job.Description())
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if !sj.nextRun.After(now) {
			due = append(due, sj)
			sj.nextRun = sj.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.execute(ctx, sj.job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	result := JobResult{
		JobName:   job.Name(),
		StartedAt: start,
		Duration:  time.Since(start),
		Err:       err,
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("job failed", "job", job.Name(), "duration", result.Duration, "error", err)
	} else {
		s.logger.Debug("job completed", "job", job.Name(), "duration", result.Duration)
	}

	s.mu.Lock()
	s.history = append(s.history, result)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	onComplete := s.OnComplete
	s.mu.Unlock()

	if onComplete != nil {
		onComplete(result)
	}
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	sj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	s.execute(ctx, sj.job)
	return nil
}

// History returns a copy of recent job results.
func (s *Scheduler) History() []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobResult, len(s.history))
	copy(out, s.history)
	return out
}

// Stop cancels the loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// ══════════════════════════════════════════════════════════════════════════════
// ONE-SHOT TASK RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// TaskRunner executes one-shot background tasks, at most one in flight per
// task name. Launching a name that is already running cancels the running
// instance first. Session close uses this to cancel an in-flight retrain
// before scheduling the fresh one.
type TaskRunner struct {
	mu     sync.Mutex
	tasks  map[string]*runningTask
	logger *slog.Logger
	wg     sync.WaitGroup
	closed bool
}

type runningTask struct {
	cancel context.CancelFunc
}

// NewTaskRunner creates an idle runner.
func NewTaskRunner(logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskRunner{
		tasks:  make(map[string]*runningTask),
		logger: logger,
	}
}

// Launch starts the job in the background, cancelling any in-flight run with
// the same name.
func (r *TaskRunner) Launch(ctx context.Context, job Job) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	if prev, ok := r.tasks[job.Name()]; ok {
		prev.cancel()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	task := &runningTask{cancel: cancel}
	r.tasks[job.Name()] = task
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		start := time.Now()
		err := job.Run(jobCtx)
		switch {
		case errors.Is(err, context.Canceled):
			r.logger.Info("task cancelled", "task", job.Name(), "duration", time.Since(start))
		case err != nil:
			r.logger.Error("task failed", "task", job.Name(), "duration", time.Since(start), "error", err)
		default:
			r.logger.Debug("task completed", "task", job.Name(), "duration", time.Since(start))
		}

		r.mu.Lock()
		// A replacement launch may already own this slot.
		if r.tasks[job.Name()] == task {
			delete(r.tasks, job.Name())
		}
		r.mu.Unlock()
	}()
	return nil
}

// Cancel stops an in-flight task by name. No-op when idle.
func (r *TaskRunner) Cancel(name string) {
	r.mu.Lock()
	task, ok := r.tasks[name]
	r.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// Close cancels everything and waits for tasks to unwind.
func (r *TaskRunner) Close() {
	r.mu.Lock()
	r.closed = true
	for _, task := range r.tasks {
		task.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidJob is returned for nil jobs or schedules.
	ErrInvalidJob = errors.New("invalid job or schedule")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrJobNotFound is returned by RunNow for unknown job names.
	ErrJobNotFound = errors.New("job not found")

	// ErrRunnerClosed is returned when launching on a closed runner.
	ErrRunnerClosed = errors.New("task runner closed")
)
