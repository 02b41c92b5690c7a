package jobs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// SnapshotStore durably mirrors job records so status survives restarts and
// in-memory pruning.
type SnapshotStore interface {
	SaveJob(ctx context.Context, job Job) error
	// LoadJob returns ErrNotFound when no snapshot exists.
	LoadJob(ctx context.Context, id string) (Job, error)
}

type entry struct {
	// status is only ever changed by CompareAndSwap while mu is held; readers
	// may load it without the lock.
	status atomic.Int32
	mu     sync.Mutex
	job    Job
}

func (e *entry) current() Status { return Status(e.status.Load()) }

/*
Registry is the process-wide table of workflow jobs.

Terminal transitions are first-writer-wins: once a job is COMPLETED or FAILED
every later SetResult/SetError is a no-op that reports applied=false. The only
write accepted afterwards is AmendResult on a COMPLETED job, which merges late
artifact fields without touching the status.
*/
type Registry struct {
	log   *logger.Logger
	store SnapshotStore
	now   func() time.Time

	mu   sync.RWMutex
	jobs map[string]*entry
}

type RegistryOption func(*Registry)

func WithSnapshotStore(s SnapshotStore) RegistryOption {
	return func(r *Registry) { r.store = s }
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(log *logger.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:  log.With("component", "JobRegistry"),
		now:  time.Now,
		jobs: make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Create(ctx context.Context, userID, projectID int64, prompt string) (Job, error) {
	now := r.now()
	e := &entry{job: Job{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProjectID: projectID,
		Prompt:    prompt,
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}}
	e.status.Store(int32(StatusPending))

	r.mu.Lock()
	r.jobs[e.job.ID] = e
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	r.mirror(ctx, e.job)
	return e.job.clone(), nil
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	return e, ok
}

// SetStatus records a non-terminal update. Only PENDING->RUNNING and
// RUNNING->RUNNING are accepted.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status, message string, progress int) error {
	if status != StatusRunning {
		return fmt.Errorf("%w: cannot set %s via SetStatus", ErrInvalidTransition, status)
	}
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current()
	if cur != StatusPending && cur != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, status)
	}
	if !e.status.CompareAndSwap(int32(cur), int32(status)) {
		return fmt.Errorf("%w: concurrent change from %s", ErrInvalidTransition, cur)
	}
	e.job.Status = status
	e.job.Message = message
	e.job.Progress = clampProgress(progress)
	e.job.UpdatedAt = r.now()
	r.mirror(ctx, e.job)
	return nil
}

// SetResult moves the job to COMPLETED. applied is false when the job was
// already terminal.
func (r *Registry) SetResult(ctx context.Context, id string, result map[string]any) (bool, error) {
	return r.finish(ctx, id, StatusCompleted, func(j *Job) {
		j.Result = maps.Clone(result)
		j.Message = "completed"
		j.Progress = 100
	})
}

// SetError moves the job to FAILED. applied is false when the job was
// already terminal.
func (r *Registry) SetError(ctx context.Context, id string, message string) (bool, error) {
	return r.finish(ctx, id, StatusFailed, func(j *Job) {
		j.Error = message
		j.Message = "failed"
	})
}

func (r *Registry) finish(ctx context.Context, id string, to Status, mutate func(*Job)) (bool, error) {
	e, ok := r.lookup(id)
	if !ok {
		return false, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current()
	if cur.Terminal() || !e.status.CompareAndSwap(int32(cur), int32(to)) {
		r.log.Warn("Ignoring terminal write on finished job", "job_id", id, "status", e.current().String(), "attempted", to.String())
		return false, nil
	}
	now := r.now()
	e.job.Status = to
	e.job.UpdatedAt = now
	e.job.CompletedAt = &now
	mutate(&e.job)
	r.mirror(ctx, e.job)
	return true, nil
}

// AmendResult merges fields into a COMPLETED job's result.
func (r *Registry) AmendResult(ctx context.Context, id string, fields map[string]any) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if cur := e.current(); cur != StatusCompleted {
		return fmt.Errorf("%w: cannot amend %s job", ErrInvalidTransition, cur)
	}
	if e.job.Result == nil {
		e.job.Result = map[string]any{}
	}
	for k, v := range fields {
		e.job.Result[k] = v
	}
	e.job.UpdatedAt = r.now()
	r.mirror(ctx, e.job)
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (Job, error) {
	if e, ok := r.lookup(id); ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.job.clone(), nil
	}
	if r.store == nil {
		return Job{}, ErrNotFound
	}
	job, err := r.store.LoadJob(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("load job snapshot: %w", err)
	}
	return job, nil
}

// Prune drops terminal jobs last updated before olderThan ago. Their
// snapshots remain reachable through Get when a store is configured.
func (r *Registry) Prune(olderThan time.Duration) int {
	cutoff := r.now().Add(-olderThan)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.jobs {
		if !e.current().Terminal() {
			continue
		}
		e.mu.Lock()
		stale := e.job.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// Counts reports in-memory jobs per status.
func (r *Registry) Counts() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[Status]int{}
	for _, e := range r.jobs {
		out[e.current()]++
	}
	return out
}

// mirror is called with e.mu held so snapshots of one job land in order.
func (r *Registry) mirror(ctx context.Context, job Job) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveJob(context.WithoutCancel(ctx), job.clone()); err != nil {
		r.log.Warn("Job snapshot write failed", "job_id", job.ID, "status", job.Status.String(), "error", err)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
