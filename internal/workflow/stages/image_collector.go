package stages

import (
	"context"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

type ReferenceImageCollector struct {
	log      *logger.Logger
	searcher ImageSearcher
}

func NewReferenceImageCollector(log *logger.Logger, searcher ImageSearcher) *ReferenceImageCollector {
	return &ReferenceImageCollector{log: log.With("stage", workflow.StageImageCollector), searcher: searcher}
}

func (s *ReferenceImageCollector) Execute(ctx context.Context, in workflow.ExecutionContext, _ workflow.Scheduler) workflow.Result {
	keyword := in.PrimaryKeyword()

	reason := ""
	var found []workflow.ImageResource
	switch {
	case s.searcher == nil:
		reason = "image search not configured"
	case strings.TrimSpace(keyword) == "":
		reason = "no keyword to search"
	default:
		urls, err := s.searcher.Search(ctx, keyword)
		if err != nil {
			reason = "image search failed: " + err.Error()
			break
		}
		for _, u := range urls {
			if strings.TrimSpace(u) == "" {
				continue
			}
			found = append(found, workflow.ImageResource{URL: u, Description: keyword, Category: "search"})
		}
		if len(found) == 0 {
			reason = "image search returned no results"
		}
	}

	if reason != "" {
		s.log.Warn("Using placeholder reference images", "job_id", in.JobID, "keyword", keyword, "reason", reason)
		images := PlaceholderReferences(keyword, PlaceholderImageCount)
		return workflow.Degraded(workflow.Delta{
			ReferenceImages: images,
			CurrentStep:     "Image collection",
			Output:          map[string]any{"imageList": images, "count": len(images)},
		}, reason)
	}

	return workflow.Ok(workflow.Delta{
		ReferenceImages: found,
		CurrentStep:     "Image collection",
		Output:          map[string]any{"imageList": found, "count": len(found)},
	})
}
