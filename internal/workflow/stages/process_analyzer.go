package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// ProcessStage turns the synthesized image into a production-process write-up.
type ProcessStage struct {
	log      *logger.Logger
	analyzer ProcessAnalyzer
}

func NewProcessStage(log *logger.Logger, analyzer ProcessAnalyzer) *ProcessStage {
	return &ProcessStage{log: log.With("stage", workflow.StageProductionProcess), analyzer: analyzer}
}

func (s *ProcessStage) Execute(ctx context.Context, in workflow.ExecutionContext, _ workflow.Scheduler) workflow.Result {
	text, err := s.analyze(ctx, in)
	if err != nil {
		s.log.Warn("Process analysis failed; using template", "job_id", in.JobID, "error", err)
		tpl := PlaceholderProcess(in.OriginalPrompt)
		return workflow.Degraded(workflow.Delta{
			ProductionProcess: workflow.Str(tpl),
			CurrentStep:       "Production process",
			Output:            map[string]any{"productionProcess": tpl},
		}, "process analysis failed: "+err.Error())
	}
	return workflow.Ok(workflow.Delta{
		ProductionProcess: workflow.Str(text),
		CurrentStep:       "Production process",
		Output:            map[string]any{"productionProcess": text},
	})
}

func (s *ProcessStage) analyze(ctx context.Context, in workflow.ExecutionContext) (string, error) {
	if s.analyzer == nil {
		return "", errors.New("process analyzer not configured")
	}
	if in.AIImage == nil || in.AIImage.URL == "" {
		return "", errors.New("no synthesized image to analyze")
	}
	out, err := s.analyzer.Analyze(ctx, in.AIImage.URL, in.EffectivePrompt())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("analyzer returned empty text")
	}
	return out, nil
}
