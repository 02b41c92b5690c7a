package supervisor

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// jobScheduler is the per-run Scheduler handed to stages.
type jobScheduler struct {
	s   *Supervisor
	job jobs.Job
	h   *workflow.Handle
}

// Defer captures the live context as of now and arms a one-shot timer.
// Scheduling after Shutdown is dropped.
func (js *jobScheduler) Defer(d workflow.Deferred) {
	s := js.s
	if d.Run == nil {
		return
	}
	snap, ok := js.h.Snapshot()
	if !ok {
		s.log.Warn("Deferred completion scheduled after run finished; dropping", "job_id", js.job.ID, "stage", d.Stage)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warn("Supervisor closed; dropping deferred completion", "job_id", js.job.ID, "stage", d.Stage)
		return
	}
	s.nextTimer++
	id := s.nextTimer
	s.deferred.Add(1)
	s.timers[id] = time.AfterFunc(d.Delay, func() {
		s.runDeferred(id, js.job, js.h, snap, d)
	})
	s.log.Debug("Deferred completion scheduled", "job_id", js.job.ID, "stage", d.Stage, "delay", d.Delay.String())
}

func (s *Supervisor) runDeferred(id uint64, job jobs.Job, h *workflow.Handle, snap workflow.ExecutionContext, d workflow.Deferred) {
	defer s.deferred.Done()
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()

	log := s.log.With("job_id", job.ID, "stage", d.Stage)
	outcome := "failed"
	defer func() {
		if r := recover(); r != nil {
			log.Error("Deferred completion panic", "panic", r)
			outcome = "panic"
		}
		s.observer.DeferredFinished(d.Stage, outcome)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.deferredTimeout)
	defer cancel()

	delta, err := d.Run(ctx, snap)
	if err != nil {
		log.Warn("Deferred completion failed", "error", err)
		return
	}

	applied := h.Apply(d.Stage, delta)

	fields := maps.Clone(delta.Output)
	if fields == nil {
		fields = map[string]any{}
	}
	if delta.CurrentStep != "" {
		fields["currentStep"] = delta.CurrentStep
	}
	amended := false
	switch err := s.registry.AmendResult(ctx, job.ID, fields); {
	case err == nil:
		amended = true
	case errors.Is(err, jobs.ErrInvalidTransition):
		if !applied {
			log.Info("Job not completed; deferred result not recorded", "error", err)
		}
	default:
		log.Warn("Amend job result failed", "error", err)
	}

	if !applied && !amended {
		outcome = "discarded"
		return
	}
	outcome = "applied"
	s.emitter.Emit(ctx, workflow.ArtifactReady(job.ID, job.ProjectID, d.Stage, d.DisplayName, delta.Output))
}
