package jobs

import (
	"time"

	"gorm.io/datatypes"
)

// JobRun mirrors an in-memory workflow job so status reads survive restarts.
type JobRun struct {
	ID          string         `gorm:"type:text;primaryKey" json:"id"`
	UserID      int64          `gorm:"not null;index" json:"user_id"`
	ProjectID   int64          `gorm:"not null;index" json:"project_id"`
	Prompt      string         `gorm:"type:text" json:"prompt"`
	Status      string         `gorm:"type:text;not null;index" json:"status"`
	Message     string         `gorm:"type:text" json:"message,omitempty"`
	Progress    int            `gorm:"not null;default:0" json:"progress"`
	Result      datatypes.JSON `gorm:"column:result" json:"result"`
	Error       string         `gorm:"column:error;type:text" json:"error,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;index" json:"updated_at"`
	CompletedAt *time.Time     `gorm:"index" json:"completed_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }
