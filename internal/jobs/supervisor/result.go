package supervisor

import (
	"maps"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// BuildResult flattens a finished context into the job result payload.
func BuildResult(ec workflow.ExecutionContext, outputs []workflow.StageOutput) map[string]any {
	images := ec.ReferenceImages
	if images == nil {
		images = []workflow.ImageResource{}
	}
	outcomes := make(map[string]string, len(outputs))
	for _, o := range outputs {
		outcomes[o.Stage] = o.Kind.String()
	}
	result := map[string]any{
		"enhancedPrompt":    ec.EnhancedPrompt,
		"keyPoint":          strings.Join(ec.Keywords, ","),
		"originalPrompt":    ec.OriginalPrompt,
		"imageList":         images,
		"productionProcess": ec.ProductionProcess,
		"threeDModelUrl":    ec.ThreeDModelURL,
		"modelImageUrl":     ec.ModelPreviewURL,
		"threeDModelStatus": ec.ThreeDStatus,
		"currentStep":       ec.CurrentStep,
		"stages":            maps.Clone(ec.StageResults),
		"stageOutcomes":     outcomes,
	}
	if ec.AIImage != nil {
		result["aiImage"] = *ec.AIImage
	} else {
		result["aiImage"] = nil
	}
	return result
}
