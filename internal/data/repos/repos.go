package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/craftflow-backend/internal/data/repos/jobs"
	"github.com/yungbote/craftflow-backend/internal/data/repos/projects"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

type ImageProjectRepo = projects.ImageProjectRepo
type ChatTurnRepo = projects.ChatTurnRepo
type ThreeDResultRepo = projects.ThreeDResultRepo
type JobRunRepo = jobs.JobRunRepo

// Repos bundles every repository over one connection.
type Repos struct {
	ImageProject ImageProjectRepo
	ChatTurn     ChatTurnRepo
	ThreeDResult ThreeDResultRepo
	JobRun       JobRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		ImageProject: projects.NewImageProjectRepo(db, log),
		ChatTurn:     projects.NewChatTurnRepo(db, log),
		ThreeDResult: projects.NewThreeDResultRepo(db, log),
		JobRun:       jobs.NewJobRunRepo(db, log),
	}
}
