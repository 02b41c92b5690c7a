package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// DefaultModelDelay is how long the external 3D job is given before the
// single status query.
const DefaultModelDelay = 150 * time.Second

type ModelSynthesizer struct {
	log      *logger.Logger
	provider ModelProvider
	sink     ArtifactSink
	delay    time.Duration
}

func NewModelSynthesizer(log *logger.Logger, provider ModelProvider, sink ArtifactSink, delay time.Duration) *ModelSynthesizer {
	if delay <= 0 {
		delay = DefaultModelDelay
	}
	return &ModelSynthesizer{
		log:      log.With("stage", workflow.StageModelMaker),
		provider: provider,
		sink:     sink,
		delay:    delay,
	}
}

func (s *ModelSynthesizer) Execute(ctx context.Context, in workflow.ExecutionContext, sched workflow.Scheduler) workflow.Result {
	modelURL, previewURL := PlaceholderModel(in.JobID)

	extID, err := s.submit(ctx, in)
	if err != nil {
		s.log.Warn("3D submission failed; using placeholder model", "job_id", in.JobID, "error", err)
		return workflow.Degraded(workflow.Delta{
			ThreeDModelURL:  workflow.Str(modelURL),
			ModelPreviewURL: workflow.Str(previewURL),
			ThreeDStatus:    workflow.Str(workflow.ThreeDPlaceholder),
			CurrentStep:     "3D modeling (placeholder)",
			Output: map[string]any{
				"status":         workflow.ThreeDPlaceholder,
				"message":        "3D model unavailable, placeholder returned",
				"threeDModelUrl": modelURL,
				"modelImageUrl":  previewURL,
			},
		}, "3D submission failed: "+err.Error())
	}

	if s.sink != nil {
		if err := s.sink.RecordSubmission(ctx, in.ProjectID, in.UserID, extID); err != nil {
			s.log.Warn("Record 3D submission failed", "job_id", in.JobID, "external_job_id", extID, "error", err)
		}
	}

	if sched == nil {
		sched = workflow.NopScheduler
	}
	sched.Defer(workflow.Deferred{
		Stage:       workflow.StageModelMaker,
		DisplayName: "3D modeling",
		Delay:       s.delay,
		Run:         s.completion(extID),
	})

	minutes := s.delay.Minutes()
	return workflow.Ok(workflow.Delta{
		ThreeDModelURL:  workflow.Str(modelURL),
		ModelPreviewURL: workflow.Str(previewURL),
		ThreeDStatus:    workflow.Str(workflow.ThreeDSubmitted),
		CurrentStep:     fmt.Sprintf("3D model generating, expected in ~%.1f min", minutes),
		Output: map[string]any{
			"status":        workflow.ThreeDSubmitted,
			"message":       "3D model submitted",
			"externalJobId": extID,
		},
		Extensions: map[string]any{"threeDExternalJobId": extID},
	})
}

func (s *ModelSynthesizer) submit(ctx context.Context, in workflow.ExecutionContext) (string, error) {
	if s.provider == nil {
		return "", errors.New("3D provider not configured")
	}
	if in.AIImage == nil || strings.TrimSpace(in.AIImage.URL) == "" {
		return "", errors.New("no synthesized image to model")
	}
	id, err := s.provider.Submit(ctx, in.AIImage.URL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("provider returned empty job id")
	}
	return id, nil
}

// completion queries the external job once. Anything other than a finished
// job with a model file resolves to placeholder URLs.
func (s *ModelSynthesizer) completion(extID string) workflow.DeferredFunc {
	return func(ctx context.Context, snap workflow.ExecutionContext) (workflow.Delta, error) {
		modelURL, previewURL := PlaceholderModel(snap.JobID)
		status := workflow.ThreeDPlaceholder

		job, err := s.provider.Query(ctx, extID)
		switch {
		case err != nil:
			s.log.Warn("3D query failed; using placeholder model", "job_id", snap.JobID, "external_job_id", extID, "error", err)
		case strings.EqualFold(job.Status, ModelStatusDone) && job.ModelURL != "":
			modelURL = job.ModelURL
			if job.PreviewURL != "" {
				previewURL = job.PreviewURL
			}
			status = workflow.ThreeDReady
		default:
			s.log.Info("3D job not finished; using placeholder model", "job_id", snap.JobID, "external_job_id", extID, "status", job.Status)
		}

		if s.sink != nil {
			art := ModelArtifact{
				ProjectID:         snap.ProjectID,
				UserID:            snap.UserID,
				ExternalJobID:     extID,
				ModelURL:          modelURL,
				PreviewURL:        previewURL,
				Status:            status,
				ProductionProcess: snap.ProductionProcess,
			}
			if snap.AIImage != nil {
				art.ImageURL = snap.AIImage.URL
			}
			if err := s.sink.RecordResult(ctx, art); err != nil {
				s.log.Warn("Record 3D result failed", "job_id", snap.JobID, "error", err)
			}
		}

		step := "3D model ready"
		if status != workflow.ThreeDReady {
			step = "3D modeling (placeholder)"
		}
		return workflow.Delta{
			ThreeDModelURL:  workflow.Str(modelURL),
			ModelPreviewURL: workflow.Str(previewURL),
			ThreeDStatus:    workflow.Str(status),
			CurrentStep:     step,
			Output: map[string]any{
				"threeDModelUrl":    modelURL,
				"modelImageUrl":     previewURL,
				"threeDModelStatus": status,
			},
		}, nil
	}
}
