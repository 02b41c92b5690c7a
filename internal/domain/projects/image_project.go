package projects

import (
	"time"

	"gorm.io/gorm"
)

const (
	ProjectStatusDraft      = "DRAFT"
	ProjectStatusProcessing = "PROCESSING"
	ProjectStatusCompleted  = "COMPLETED"
)

// ImageProject is the user's design workspace; workflow runs attach to it.
type ImageProject struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64  `gorm:"not null;index" json:"user_id"`
	Title  string `gorm:"type:text" json:"title"`
	Prompt string `gorm:"type:text" json:"prompt"`
	Status string `gorm:"type:text;not null;default:'DRAFT';index" json:"status"`

	ImageURL          string `gorm:"type:text" json:"image_url,omitempty"`
	ProductionProcess string `gorm:"type:text" json:"production_process,omitempty"`
	ModelURL          string `gorm:"type:text" json:"model_url,omitempty"`
	ModelPreviewURL   string `gorm:"type:text" json:"model_preview_url,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ImageProject) TableName() string { return "image_project" }
