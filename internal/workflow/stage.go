package workflow

import (
	"context"
	"time"
)

type ResultKind int

const (
	ResultOk ResultKind = iota
	ResultDegraded
	ResultFatal
)

func (k ResultKind) String() string {
	switch k {
	case ResultOk:
		return "ok"
	case ResultDegraded:
		return "degraded"
	case ResultFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a stage. Degraded is a success produced by
// a fallback path; only Fatal aborts the run.
type Result struct {
	Kind   ResultKind
	Delta  Delta
	Reason string
	Err    error
}

func Ok(d Delta) Result { return Result{Kind: ResultOk, Delta: d} }

func Degraded(d Delta, reason string) Result {
	return Result{Kind: ResultDegraded, Delta: d, Reason: reason}
}

func Fatal(err error) Result { return Result{Kind: ResultFatal, Err: err} }

// Stage is one unit of work in a pipeline. in is a private snapshot; all
// changes must be returned through the Result's Delta.
type Stage interface {
	Execute(ctx context.Context, in ExecutionContext, sched Scheduler) Result
}

type StageFunc func(ctx context.Context, in ExecutionContext, sched Scheduler) Result

func (f StageFunc) Execute(ctx context.Context, in ExecutionContext, sched Scheduler) Result {
	return f(ctx, in, sched)
}

// DeferredFunc finalizes a stage's real-world result after the stage itself
// has returned. It receives a snapshot of the context as of scheduling time
// and returns the delta to publish.
type DeferredFunc func(ctx context.Context, snapshot ExecutionContext) (Delta, error)

// Deferred describes a one-shot completion scheduled by a stage.
type Deferred struct {
	Stage       string
	DisplayName string
	Delay       time.Duration
	Run         DeferredFunc
}

// Scheduler is the per-job facility stages use to schedule deferred work.
type Scheduler interface {
	Defer(d Deferred)
}

// Emitter receives progress events. Implementations must not block for long.
type Emitter interface {
	Emit(ctx context.Context, ev ProgressEvent)
}

type EmitterFunc func(ctx context.Context, ev ProgressEvent)

func (f EmitterFunc) Emit(ctx context.Context, ev ProgressEvent) { f(ctx, ev) }

type nopScheduler struct{}

func (nopScheduler) Defer(Deferred) {}

// NopScheduler drops deferred work.
var NopScheduler Scheduler = nopScheduler{}
