package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/craftflow-backend/internal/data/dberr"
	types "github.com/yungbote/craftflow-backend/internal/domain"
	jobstate "github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

// JobRunRepo is the durable side of the job registry.
type JobRunRepo interface {
	SaveJob(ctx context.Context, job jobstate.Job) error
	LoadJob(ctx context.Context, id string) (jobstate.Job, error)
	ListByProject(dbc dbctx.Context, projectID int64, limit int) ([]*types.JobRun, error)
	DeleteFinishedBefore(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

// SaveJob upserts the full row; later snapshots overwrite earlier ones.
func (r *jobRunRepo) SaveJob(ctx context.Context, job jobstate.Job) error {
	row, err := toRow(job)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "message", "progress", "result", "error", "updated_at", "completed_at",
		}),
	}).Create(row).Error
	return dberr.Map("save job run", err)
}

func (r *jobRunRepo) LoadJob(ctx context.Context, id string) (jobstate.Job, error) {
	var row types.JobRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jobstate.Job{}, jobstate.ErrNotFound
	}
	if err != nil {
		return jobstate.Job{}, dberr.Map("load job run", err)
	}
	return fromRow(&row)
}

func (r *jobRunRepo) ListByProject(dbc dbctx.Context, projectID int64, limit int) ([]*types.JobRun, error) {
	out := []*types.JobRun{}
	q := dbc.DB(r.db).Where("project_id = ?", projectID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, dberr.Map("list job runs", err)
	}
	return out, nil
}

func (r *jobRunRepo) DeleteFinishedBefore(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Where("completed_at IS NOT NULL AND completed_at < ?", cutoff).
		Delete(&types.JobRun{})
	if res.Error != nil {
		return 0, dberr.Map("delete job runs", res.Error)
	}
	return res.RowsAffected, nil
}

func toRow(job jobstate.Job) (*types.JobRun, error) {
	result := datatypes.JSON([]byte("null"))
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("encode job result: %w", err)
		}
		result = datatypes.JSON(b)
	}
	return &types.JobRun{
		ID:          job.ID,
		UserID:      job.UserID,
		ProjectID:   job.ProjectID,
		Prompt:      job.Prompt,
		Status:      job.Status.String(),
		Message:     job.Message,
		Progress:    job.Progress,
		Result:      result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

func fromRow(row *types.JobRun) (jobstate.Job, error) {
	status, err := jobstate.ParseStatus(row.Status)
	if err != nil {
		return jobstate.Job{}, err
	}
	job := jobstate.Job{
		ID:          row.ID,
		UserID:      row.UserID,
		ProjectID:   row.ProjectID,
		Prompt:      row.Prompt,
		Status:      status,
		Message:     row.Message,
		Progress:    row.Progress,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		CompletedAt: row.CompletedAt,
	}
	if len(row.Result) > 0 && string(row.Result) != "null" {
		if err := json.Unmarshal(row.Result, &job.Result); err != nil {
			return jobstate.Job{}, fmt.Errorf("decode job result: %w", err)
		}
	}
	return job, nil
}
