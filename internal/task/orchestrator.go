package task

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateActiveJob is returned by Enqueue when a non-terminal job of the
// same type and user already exists and duplicates were not allowed.
var ErrDuplicateActiveJob = errors.New("an active job of this type already exists for the user")

// ErrJobNotFound is returned when the referenced job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// MetricsSink records orchestrator metrics. Optional, nil = disabled. All
// methods are fire-and-forget and must not block.
type MetricsSink interface {
	JobStarted(jobType string)
	JobFinished(jobType, outcome string, d time.Duration)
}

// Orchestrator owns the in-process job table and dispatches each enqueued job
// to the executor registered for its type on its own goroutine, decoupled from
// the caller. It is the sole authority on the duplicate-run policy.
type Orchestrator struct {
	registry *Registry
	metrics  MetricsSink

	mu   sync.Mutex
	jobs map[uuid.UUID]*entry

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type entry struct {
	job    Job
	cancel context.CancelFunc
}

type Option func(*Orchestrator)

// WithMetrics attaches a metrics sink to the orchestrator.
func WithMetrics(sink MetricsSink) Option {
	return func(o *Orchestrator) { o.metrics = sink }
}

func NewOrchestrator(registry *Registry, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry: registry,
		jobs:     make(map[uuid.UUID]*entry),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue creates a job and dispatches it immediately. With
// allowDuplicate=false it fails with ErrDuplicateActiveJob when a non-terminal
// job of the same type and user exists.
func (o *Orchestrator) Enqueue(t Type, userID string, payload any, allowDuplicate bool) (Job, error) {
	exec, err := o.registry.Get(t)
	if err != nil {
		return Job{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !allowDuplicate {
		for _, e := range o.jobs {
			if e.job.Type == t && e.job.UserID == userID && !e.job.Status.Terminal() {
				return Job{}, ErrDuplicateActiveJob
			}
		}
	}

	runCtx, runCancel := context.WithCancel(o.baseCtx)
	e := &entry{
		job: Job{
			ID:        uuid.New(),
			Type:      t,
			UserID:    userID,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		cancel: runCancel,
	}
	o.jobs[e.job.ID] = e

	o.wg.Add(1)
	go o.run(runCtx, e.job.ID, exec, RunContext{
		JobID:   e.job.ID,
		UserID:  userID,
		Payload: payload,
		Report: func(p Progress) {
			o.UpdateProgress(e.job.ID, p)
		},
	})

	return e.job, nil
}

func (o *Orchestrator) run(ctx context.Context, id uuid.UUID, exec Executor, run RunContext) {
	defer o.wg.Done()

	start := time.Now()
	o.transition(id, StatusRunning, "")
	if o.metrics != nil {
		o.metrics.JobStarted(string(exec.Type()))
	}
	slog.Info("job started", "job", id, "type", exec.Type(), "user", run.UserID)

	err := exec.Execute(ctx, run)

	outcome := StatusCompleted
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = StatusCanceled
	default:
		outcome = StatusFailed
		slog.Error("job failed", "job", id, "type", exec.Type(), "error", err)
	}
	errText := ""
	if outcome == StatusFailed {
		errText = err.Error()
	}
	o.transition(id, outcome, errText)
	if o.metrics != nil {
		o.metrics.JobFinished(string(exec.Type()), string(outcome), time.Since(start))
	}
	slog.Info("job finished", "job", id, "type", exec.Type(), "status", outcome, "duration", time.Since(start).String())
}

func (o *Orchestrator) transition(id uuid.UUID, s Status, errText string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.jobs[id]
	if !ok {
		return
	}
	e.job.Status = s
	e.job.Error = errText
	now := time.Now().UTC()
	if s == StatusRunning {
		e.job.StartedAt = now
	}
	if s.Terminal() {
		e.job.FinishedAt = now
	}
}

// Get returns a snapshot of the job.
func (o *Orchestrator) Get(id uuid.UUID) (Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// ListActive returns non-terminal jobs for the user, newest first.
func (o *Orchestrator) ListActive(userID string) []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	jobs := make([]Job, 0)
	for _, e := range o.jobs {
		if e.job.UserID == userID && !e.job.Status.Terminal() {
			jobs = append(jobs, e.job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs
}

// UpdateProgress replaces the stored progress snapshot wholesale. Invoked only
// by the owning executor; last write wins.
func (o *Orchestrator) UpdateProgress(id uuid.UUID, p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.jobs[id]; ok {
		e.job.Progress = p
	}
}

// CancelOrRemove signals cancellation when the job is still running and purges
// it when terminal. Returns false for unknown ids.
func (o *Orchestrator) CancelOrRemove(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.jobs[id]
	if !ok {
		return false
	}
	if e.job.Status.Terminal() {
		delete(o.jobs, id)
		return true
	}
	e.cancel()
	return true
}

// Close cancels all running jobs and blocks until their executors have emitted
// terminal progress and returned.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}
