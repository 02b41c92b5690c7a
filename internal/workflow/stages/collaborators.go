package stages

import (
	"context"
	"time"
)

// ChatTurn is one prior exchange in a project's conversation.
type ChatTurn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// HistoryLoader returns the most recent turns for a project, newest first or
// in any order; callers sort them.
type HistoryLoader interface {
	RecentTurns(ctx context.Context, projectID int64, limit int) ([]ChatTurn, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, history string) (string, error)
}

type ImageSearcher interface {
	Search(ctx context.Context, keyword string) ([]string, error)
}

// GeneratedImage is what an ImageGenerator produces.
type GeneratedImage struct {
	URL           string
	RevisedPrompt string
}

type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, references []string) (GeneratedImage, error)
}

type ProcessAnalyzer interface {
	Analyze(ctx context.Context, imageURL, prompt string) (string, error)
}

// ModelJob is the state of an external image-to-3D job.
type ModelJob struct {
	Status     string
	ModelURL   string
	PreviewURL string
}

// ModelStatusDone is the external status reporting a finished 3D job.
const ModelStatusDone = "DONE"

type ModelProvider interface {
	Submit(ctx context.Context, imageURL string) (externalJobID string, err error)
	Query(ctx context.Context, externalJobID string) (ModelJob, error)
}

// ModelArtifact is the durable record of a finished (or substituted) 3D
// result together with the project outputs it belongs to.
type ModelArtifact struct {
	ProjectID         int64
	UserID            int64
	ExternalJobID     string
	ModelURL          string
	PreviewURL        string
	Status            string
	ImageURL          string
	ProductionProcess string
}

// ArtifactSink durably records 3D submissions and results against a project.
type ArtifactSink interface {
	RecordSubmission(ctx context.Context, projectID, userID int64, externalJobID string) error
	RecordResult(ctx context.Context, a ModelArtifact) error
}
