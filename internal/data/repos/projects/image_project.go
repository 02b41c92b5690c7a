package projects

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/craftflow-backend/internal/data/dberr"
	types "github.com/yungbote/craftflow-backend/internal/domain"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

type ImageProjectRepo interface {
	Create(dbc dbctx.Context, p *types.ImageProject) (*types.ImageProject, error)
	GetByID(dbc dbctx.Context, id int64) (*types.ImageProject, error)
	// GetOwned returns dberr.ErrNotFound when the project is missing or
	// belongs to another user.
	GetOwned(dbc dbctx.Context, id, userID int64) (*types.ImageProject, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]any) error
	MarkProcessing(dbc dbctx.Context, id int64, prompt string) error
}

type imageProjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageProjectRepo(db *gorm.DB, baseLog *logger.Logger) ImageProjectRepo {
	return &imageProjectRepo{
		db:  db,
		log: baseLog.With("repo", "ImageProjectRepo"),
	}
}

func (r *imageProjectRepo) Create(dbc dbctx.Context, p *types.ImageProject) (*types.ImageProject, error) {
	if p.Status == "" {
		p.Status = types.ProjectStatusDraft
	}
	if err := dbc.DB(r.db).Create(p).Error; err != nil {
		return nil, dberr.Map("create image project", err)
	}
	return p, nil
}

func (r *imageProjectRepo) GetByID(dbc dbctx.Context, id int64) (*types.ImageProject, error) {
	var p types.ImageProject
	if err := dbc.DB(r.db).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, dberr.Map("get image project", err)
	}
	return &p, nil
}

func (r *imageProjectRepo) GetOwned(dbc dbctx.Context, id, userID int64) (*types.ImageProject, error) {
	var p types.ImageProject
	err := dbc.DB(r.db).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, dberr.Map("get owned image project", err)
	}
	return &p, nil
}

func (r *imageProjectRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := dbc.DB(r.db).Model(&types.ImageProject{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return dberr.Map("update image project", res.Error)
	}
	if res.RowsAffected == 0 {
		return dberr.Map("update image project", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *imageProjectRepo) MarkProcessing(dbc dbctx.Context, id int64, prompt string) error {
	updates := map[string]any{"status": types.ProjectStatusProcessing}
	if p := strings.TrimSpace(prompt); p != "" {
		updates["prompt"] = p
	}
	return r.UpdateFields(dbc, id, updates)
}
