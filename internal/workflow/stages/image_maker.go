package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// MaxReferenceImages caps how many references are handed to the generator.
const MaxReferenceImages = 2

type ImageSynthesizer struct {
	log       *logger.Logger
	generator ImageGenerator
}

func NewImageSynthesizer(log *logger.Logger, generator ImageGenerator) *ImageSynthesizer {
	return &ImageSynthesizer{log: log.With("stage", workflow.StageImageMaker), generator: generator}
}

func (s *ImageSynthesizer) Execute(ctx context.Context, in workflow.ExecutionContext, _ workflow.Scheduler) workflow.Result {
	prompt := in.EffectivePrompt()
	refs := make([]string, 0, MaxReferenceImages)
	for _, img := range in.ReferenceImages {
		if len(refs) == MaxReferenceImages {
			break
		}
		if img.URL != "" {
			refs = append(refs, img.URL)
		}
	}

	img, err := s.generate(ctx, prompt, refs)
	if err != nil {
		s.log.Warn("Image generation failed; using placeholder", "job_id", in.JobID, "error", err)
		ph := PlaceholderImage(in.OriginalPrompt)
		return workflow.Degraded(workflow.Delta{
			AIImage:     &ph,
			CurrentStep: "Image generation",
			Output:      map[string]any{"aiImage": ph},
		}, "image generation failed: "+err.Error())
	}

	desc := img.RevisedPrompt
	if desc == "" {
		desc = "generated image"
	}
	res := workflow.ImageResource{URL: img.URL, Description: desc, Category: "generated"}
	return workflow.Ok(workflow.Delta{
		AIImage:     &res,
		CurrentStep: "Image generation",
		Output:      map[string]any{"aiImage": res, "referenceCount": len(refs)},
	})
}

func (s *ImageSynthesizer) generate(ctx context.Context, prompt string, refs []string) (GeneratedImage, error) {
	if s.generator == nil {
		return GeneratedImage{}, errors.New("image generator not configured")
	}
	img, err := s.generator.Generate(ctx, prompt, refs)
	if err != nil {
		return GeneratedImage{}, err
	}
	if strings.TrimSpace(img.URL) == "" {
		return GeneratedImage{}, errors.New("generator returned no image")
	}
	return img, nil
}
