package workflow

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/yungbote/craftflow-backend/internal/workflow"

// StageObserver is notified once per stage execution with its outcome
// ("ok", "degraded", "fatal", "panic").
type StageObserver func(stage, outcome string, dur time.Duration)

type instrumentConfig struct {
	tracer   trace.Tracer
	observer StageObserver
}

type InstrumentOption func(*instrumentConfig)

func WithTracer(t trace.Tracer) InstrumentOption {
	return func(c *instrumentConfig) { c.tracer = t }
}

func WithStageObserver(fn StageObserver) InstrumentOption {
	return func(c *instrumentConfig) { c.observer = fn }
}

type instrumentedStage struct {
	name    string
	display string
	index   int
	total   int
	inner   Stage
	emitter Emitter
	cfg     instrumentConfig
}

// Wrap decorates stage so that NODE_STARTED is emitted before it runs,
// NODE_COMPLETED after an Ok or Degraded result, and NODE_FAILED on a Fatal
// result or panic. Fatal results are returned unchanged and panics are
// re-raised; the wrapper never swallows failures.
func Wrap(name, displayName string, index, total int, stage Stage, emitter Emitter, opts ...InstrumentOption) Stage {
	cfg := instrumentConfig{tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if emitter == nil {
		emitter = EmitterFunc(func(context.Context, ProgressEvent) {})
	}
	return &instrumentedStage{
		name:    name,
		display: displayName,
		index:   index,
		total:   total,
		inner:   stage,
		emitter: emitter,
		cfg:     cfg,
	}
}

func (s *instrumentedStage) Execute(ctx context.Context, in ExecutionContext, sched Scheduler) (res Result) {
	ctx, span := s.cfg.tracer.Start(ctx, "workflow.stage "+s.name, trace.WithAttributes(
		attribute.String("workflow.job_id", in.JobID),
		attribute.Int64("workflow.project_id", in.ProjectID),
		attribute.String("workflow.stage", s.name),
		attribute.Int("workflow.stage_index", s.index),
	))
	defer span.End()

	start := time.Now()
	s.emitter.Emit(ctx, NodeStarted(in.JobID, in.ProjectID, s.name, s.display, s.index, s.total))

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			span.SetStatus(codes.Error, msg)
			s.observe("panic", start)
			s.emitter.Emit(ctx, NodeFailedEvent(in.JobID, in.ProjectID, s.name, s.display, msg, s.index, s.total))
			panic(r)
		}
	}()

	res = s.inner.Execute(ctx, in, sched)

	switch res.Kind {
	case ResultFatal:
		msg := "stage failed"
		if res.Err != nil {
			msg = res.Err.Error()
			span.RecordError(res.Err)
		}
		span.SetStatus(codes.Error, msg)
		s.observe(res.Kind.String(), start)
		s.emitter.Emit(ctx, NodeFailedEvent(in.JobID, in.ProjectID, s.name, s.display, msg, s.index, s.total))
	default:
		span.SetAttributes(attribute.String("workflow.outcome", res.Kind.String()))
		s.observe(res.Kind.String(), start)
		ev := NodeCompletedEvent(in.JobID, in.ProjectID, s.name, s.display, nodePayload(res), s.index, s.total)
		if res.Kind == ResultDegraded {
			ev.Message = "completed with fallback output: " + s.display
		}
		s.emitter.Emit(ctx, ev)
	}
	return res
}

func (s *instrumentedStage) observe(outcome string, start time.Time) {
	if s.cfg.observer != nil {
		s.cfg.observer(s.name, outcome, time.Since(start))
	}
}

func nodePayload(res Result) map[string]any {
	out := maps.Clone(res.Delta.Output)
	if out == nil {
		out = map[string]any{}
	}
	if res.Kind == ResultDegraded {
		out["degraded"] = true
		out["reason"] = res.Reason
	}
	return out
}
