package projects

import (
	"context"
	"slices"

	"gorm.io/gorm"

	"github.com/yungbote/craftflow-backend/internal/data/dberr"
	types "github.com/yungbote/craftflow-backend/internal/domain"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

type ChatTurnRepo interface {
	Append(dbc dbctx.Context, turns ...*types.ChatTurn) error
	// Recent returns up to limit turns, oldest first.
	Recent(dbc dbctx.Context, projectID int64, limit int) ([]*types.ChatTurn, error)
	RecentTurns(ctx context.Context, projectID int64, limit int) ([]stages.ChatTurn, error)
}

type chatTurnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatTurnRepo(db *gorm.DB, baseLog *logger.Logger) ChatTurnRepo {
	return &chatTurnRepo{
		db:  db,
		log: baseLog.With("repo", "ChatTurnRepo"),
	}
}

func (r *chatTurnRepo) Append(dbc dbctx.Context, turns ...*types.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := dbc.DB(r.db).Create(&turns).Error; err != nil {
		return dberr.Map("append chat turns", err)
	}
	return nil
}

func (r *chatTurnRepo) Recent(dbc dbctx.Context, projectID int64, limit int) ([]*types.ChatTurn, error) {
	out := []*types.ChatTurn{}
	if limit <= 0 {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("recent chat turns", err)
	}
	slices.Reverse(out)
	return out, nil
}

// RecentTurns serves the prompt enhancer's history lookup.
func (r *chatTurnRepo) RecentTurns(ctx context.Context, projectID int64, limit int) ([]stages.ChatTurn, error) {
	rows, err := r.Recent(dbctx.Of(ctx), projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]stages.ChatTurn, 0, len(rows))
	for _, row := range rows {
		out = append(out, stages.ChatTurn{Role: row.Role, Content: row.Content, CreatedAt: row.CreatedAt})
	}
	return out, nil
}
