package app

import (
	"fmt"

	"github.com/yungbote/craftflow-backend/internal/jobs/supervisor"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

func wireStages(log *logger.Logger, cfg Config, c Clients, r Repos) map[string]workflow.Stage {
	log.Info("Wiring stages...")
	var history stages.HistoryLoader
	var sink stages.ArtifactSink
	if r.ChatTurn != nil {
		history = r.ChatTurn
	}
	if r.ThreeDResult != nil {
		sink = r.ThreeDResult
	}
	return map[string]workflow.Stage{
		workflow.StagePromptEnhancer:    stages.NewPromptEnhancer(log, history, c.Summarizer),
		workflow.StageImageCollector:    stages.NewReferenceImageCollector(log, c.Searcher),
		workflow.StageImageMaker:        stages.NewImageSynthesizer(log, c.Generator),
		workflow.StageProductionProcess: stages.NewProcessStage(log, c.Analyzer),
		workflow.StageModelMaker:        stages.NewModelSynthesizer(log, c.Models, sink, cfg.ModelDelay),
	}
}

// wirePipeline loads the graph definition once and returns a factory that
// compiles it per run, so a bad definition fails jobs instead of startup.
func wirePipeline(log *logger.Logger, cfg Config, registered map[string]workflow.Stage) (supervisor.PipelineFactory, error) {
	def := workflow.DefaultDefinition()
	if cfg.PipelinePath != "" {
		loaded, err := workflow.LoadDefinition(cfg.PipelinePath)
		if err != nil {
			return nil, fmt.Errorf("load pipeline definition: %w", err)
		}
		def = loaded
		log.Info("Loaded pipeline definition", "path", cfg.PipelinePath, "nodes", len(def.Nodes))
	}
	if _, err := def.Compile(registered); err != nil {
		log.Error("Pipeline definition does not compile; runs will fail", "error", err)
	}
	return func() (*workflow.Pipeline, error) {
		return def.Compile(registered)
	}, nil
}
