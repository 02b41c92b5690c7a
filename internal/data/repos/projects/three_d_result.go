package projects

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/craftflow-backend/internal/data/dberr"
	types "github.com/yungbote/craftflow-backend/internal/domain"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

const ThreeDStatusSubmitted = "SUBMITTED"

// ThreeDResultRepo persists external 3D jobs and folds finished results back
// into their project.
type ThreeDResultRepo interface {
	GetByExternalID(dbc dbctx.Context, externalJobID string) (*types.ThreeDResult, error)
	ListByProject(dbc dbctx.Context, projectID int64) ([]*types.ThreeDResult, error)
	RecordSubmission(ctx context.Context, projectID, userID int64, externalJobID string) error
	RecordResult(ctx context.Context, a stages.ModelArtifact) error
}

type threeDResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewThreeDResultRepo(db *gorm.DB, baseLog *logger.Logger) ThreeDResultRepo {
	return &threeDResultRepo{
		db:  db,
		log: baseLog.With("repo", "ThreeDResultRepo"),
		now: time.Now,
	}
}

func (r *threeDResultRepo) GetByExternalID(dbc dbctx.Context, externalJobID string) (*types.ThreeDResult, error) {
	var row types.ThreeDResult
	if err := dbc.DB(r.db).Where("external_job_id = ?", externalJobID).First(&row).Error; err != nil {
		return nil, dberr.Map("get 3d result", err)
	}
	return &row, nil
}

func (r *threeDResultRepo) ListByProject(dbc dbctx.Context, projectID int64) ([]*types.ThreeDResult, error) {
	out := []*types.ThreeDResult{}
	err := dbc.DB(r.db).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("list 3d results", err)
	}
	return out, nil
}

// RecordSubmission is idempotent per external job id.
func (r *threeDResultRepo) RecordSubmission(ctx context.Context, projectID, userID int64, externalJobID string) error {
	now := r.now()
	row := types.ThreeDResult{
		ProjectID:     projectID,
		UserID:        userID,
		ExternalJobID: externalJobID,
		Status:        ThreeDStatusSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_job_id"}}, DoNothing: true}).
		Create(&row).Error
	return dberr.Map("record 3d submission", err)
}

// RecordResult upserts the 3D row and marks the project completed with the
// image, process and model outputs in one transaction.
func (r *threeDResultRepo) RecordResult(ctx context.Context, a stages.ModelArtifact) error {
	now := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := types.ThreeDResult{
			ProjectID:         a.ProjectID,
			UserID:            a.UserID,
			ExternalJobID:     a.ExternalJobID,
			Status:            a.Status,
			ModelURL:          a.ModelURL,
			PreviewURL:        a.PreviewURL,
			ImageURL:          a.ImageURL,
			ProductionProcess: a.ProductionProcess,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "model_url", "preview_url", "image_url", "production_process", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return dberr.Map("upsert 3d result", err)
		}

		updates := map[string]any{
			"status":            types.ProjectStatusCompleted,
			"model_url":         a.ModelURL,
			"model_preview_url": a.PreviewURL,
			"updated_at":        now,
		}
		if a.ImageURL != "" {
			updates["image_url"] = a.ImageURL
		}
		if a.ProductionProcess != "" {
			updates["production_process"] = a.ProductionProcess
		}
		res := tx.Model(&types.ImageProject{}).Where("id = ?", a.ProjectID).Updates(updates)
		if res.Error != nil {
			return dberr.Map("complete image project", res.Error)
		}
		if res.RowsAffected == 0 {
			r.log.Warn("3D result recorded for unknown project", "project_id", a.ProjectID, "external_job_id", a.ExternalJobID)
		}
		return nil
	})
}
