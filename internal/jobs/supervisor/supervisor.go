package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

const (
	DefaultConcurrency     = 4
	DefaultDeferredTimeout = time.Minute
	// StartedProgress is the job progress recorded when a run begins.
	StartedProgress = 10
)

var (
	ErrShuttingDown   = errors.New("supervisor shutting down")
	ErrInvalidRequest = errors.New("invalid workflow request")
)

// Registry is the subset of the job registry the supervisor writes to.
type Registry interface {
	Create(ctx context.Context, userID, projectID int64, prompt string) (jobs.Job, error)
	SetStatus(ctx context.Context, id string, status jobs.Status, message string, progress int) error
	SetResult(ctx context.Context, id string, result map[string]any) (bool, error)
	SetError(ctx context.Context, id string, message string) (bool, error)
	AmendResult(ctx context.Context, id string, fields map[string]any) error
}

// PipelineFactory returns the pipeline to run. A compile error fails the job.
type PipelineFactory func() (*workflow.Pipeline, error)

// Observer receives run-level measurements.
type Observer interface {
	RunStarted()
	RunFinished(status string, dur time.Duration)
	StageFinished(stage, outcome string, dur time.Duration)
	DeferredFinished(stage, outcome string)
}

type nopObserver struct{}

func (nopObserver) RunStarted()                                 {}
func (nopObserver) RunFinished(string, time.Duration)           {}
func (nopObserver) StageFinished(string, string, time.Duration) {}
func (nopObserver) DeferredFinished(string, string)             {}

// Submission acknowledges an accepted run.
type Submission struct {
	ExecutionID    string    `json:"executionId"`
	JobID          string    `json:"jobId"`
	ImageProjectID int64     `json:"imageProjectId"`
	Status         string    `json:"status"`
	OriginalPrompt string    `json:"originalPrompt"`
	StartTime      time.Time `json:"startTime"`
}

type Option func(*Supervisor)

func WithConcurrency(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.concurrency = int64(n)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) { s.tracer = t }
}

func WithDeferredTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.deferredTimeout = d
		}
	}
}

/*
Supervisor owns workflow runs from submission to their single terminal event.

Each accepted submission runs on its own goroutine, bounded by a weighted
semaphore. The run owns the job's ExecutionContext through a Handle; deferred
completions scheduled by stages are tracked so Shutdown can stop them.
*/
type Supervisor struct {
	log             *logger.Logger
	registry        Registry
	pipeline        PipelineFactory
	emitter         workflow.Emitter
	observer        Observer
	tracer          trace.Tracer
	concurrency     int64
	deferredTimeout time.Duration
	sem             *semaphore.Weighted

	runs sync.WaitGroup

	// mu guards closed, timers and nextTimer.
	mu        sync.Mutex
	closed    bool
	timers    map[uint64]*time.Timer
	nextTimer uint64
	deferred  sync.WaitGroup
}

func New(log *logger.Logger, registry Registry, pipeline PipelineFactory, emitter workflow.Emitter, opts ...Option) *Supervisor {
	s := &Supervisor{
		log:             log.With("component", "Supervisor"),
		registry:        registry,
		pipeline:        pipeline,
		emitter:         emitter,
		observer:        nopObserver{},
		tracer:          otel.Tracer("github.com/yungbote/craftflow-backend/internal/jobs/supervisor"),
		concurrency:     DefaultConcurrency,
		deferredTimeout: DefaultDeferredTimeout,
		timers:          make(map[uint64]*time.Timer),
	}
	for _, o := range opts {
		o(s)
	}
	if s.emitter == nil {
		s.emitter = workflow.EmitterFunc(func(context.Context, workflow.ProgressEvent) {})
	}
	s.sem = semaphore.NewWeighted(s.concurrency)
	return s
}

// Submit creates the job and starts its run without waiting for it.
func (s *Supervisor) Submit(ctx context.Context, userID, projectID int64, prompt string) (Submission, error) {
	if projectID < 1 || strings.TrimSpace(prompt) == "" {
		return Submission{}, ErrInvalidRequest
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Submission{}, ErrShuttingDown
	}
	s.runs.Add(1)
	s.mu.Unlock()

	job, err := s.registry.Create(ctx, userID, projectID, prompt)
	if err != nil {
		s.runs.Done()
		return Submission{}, fmt.Errorf("create job: %w", err)
	}
	go s.run(context.WithoutCancel(ctx), job)

	s.log.Info("Workflow submitted", "job_id", job.ID, "project_id", projectID, "user_id", userID)
	return Submission{
		ExecutionID:    uuid.New().String(),
		JobID:          job.ID,
		ImageProjectID: projectID,
		Status:         jobs.StatusPending.String(),
		OriginalPrompt: prompt,
		StartTime:      job.CreatedAt,
	}, nil
}

func (s *Supervisor) run(ctx context.Context, job jobs.Job) {
	defer s.runs.Done()
	log := s.log.With("job_id", job.ID, "project_id", job.ProjectID)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.fail(ctx, log, job, fmt.Errorf("acquire worker slot: %w", err))
		return
	}
	defer s.sem.Release(1)

	ctx, span := s.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.job_id", job.ID),
		attribute.Int64("workflow.project_id", job.ProjectID),
	))
	defer span.End()

	start := time.Now()
	s.observer.RunStarted()
	status := jobs.StatusFailed

	var h *workflow.Handle
	defer func() {
		if r := recover(); r != nil {
			log.Error("Workflow run panic", "panic", r)
			span.SetStatus(codes.Error, "panic")
			if h != nil {
				h.Release()
			}
			s.fail(ctx, log, job, fmt.Errorf("panic: %v", r))
		}
		s.observer.RunFinished(status.String(), time.Since(start))
	}()

	p, err := s.pipeline()
	if err != nil {
		span.RecordError(err)
		s.fail(ctx, log, job, fmt.Errorf("build pipeline: %w", err))
		return
	}
	p = p.Instrument(s.emitter, workflow.WithStageObserver(s.observer.StageFinished))

	if err := s.registry.SetStatus(ctx, job.ID, jobs.StatusRunning, "workflow started", StartedProgress); err != nil {
		s.fail(ctx, log, job, fmt.Errorf("mark running: %w", err))
		return
	}
	s.emitter.Emit(ctx, workflow.WorkflowStarted(job.ID, job.ProjectID, p.Len()))

	h = workflow.NewHandle(workflow.NewExecutionContext(job.ID, job.ProjectID, job.UserID, job.Prompt))
	outputs, runErr := p.Run(ctx, h, &jobScheduler{s: s, job: job, h: h})
	final, _ := h.Release()

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		s.fail(ctx, log, job, runErr)
		return
	}

	result := BuildResult(final, outputs)
	applied, err := s.registry.SetResult(ctx, job.ID, result)
	if err != nil {
		s.fail(ctx, log, job, fmt.Errorf("record result: %w", err))
		return
	}
	if !applied {
		log.Warn("Run finished after job was already terminal")
		return
	}
	status = jobs.StatusCompleted
	s.emitter.Emit(ctx, workflow.WorkflowCompleted(job.ID, job.ProjectID, result, p.Len()))
	log.Info("Workflow completed", "duration", time.Since(start).String(), "degraded_stages", degradedStages(outputs))
}

// fail records err and emits WORKFLOW_FAILED only when this call performed
// the terminal transition.
func (s *Supervisor) fail(ctx context.Context, log *logger.Logger, job jobs.Job, err error) {
	msg := err.Error()
	applied, werr := s.registry.SetError(ctx, job.ID, msg)
	if werr != nil {
		log.Error("Record job failure failed", "error", werr, "cause", msg)
		return
	}
	if !applied {
		return
	}
	log.Warn("Workflow failed", "error", msg)
	s.emitter.Emit(ctx, workflow.WorkflowFailed(job.ID, job.ProjectID, msg))
}

// Shutdown stops accepting work, cancels pending deferred completions and
// waits for in-flight runs and completions until ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		if t.Stop() {
			s.deferred.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		s.deferred.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many deferred completions are scheduled.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func degradedStages(outputs []workflow.StageOutput) []string {
	var out []string
	for _, o := range outputs {
		if o.Kind == workflow.ResultDegraded {
			out = append(out, o.Stage)
		}
	}
	return out
}
