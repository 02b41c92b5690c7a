package domain

import (
	"github.com/yungbote/craftflow-backend/internal/domain/jobs"
	"github.com/yungbote/craftflow-backend/internal/domain/projects"
)

const (
	ProjectStatusDraft      = projects.ProjectStatusDraft
	ProjectStatusProcessing = projects.ProjectStatusProcessing
	ProjectStatusCompleted  = projects.ProjectStatusCompleted
)

type (
	ImageProject = projects.ImageProject
	ChatTurn     = projects.ChatTurn
	ThreeDResult = projects.ThreeDResult
	JobRun       = jobs.JobRun
)

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&ImageProject{},
		&ChatTurn{},
		&ThreeDResult{},
		&JobRun{},
	}
}
