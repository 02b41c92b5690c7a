package projects

import "time"

type ThreeDResult struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID     int64  `gorm:"not null;index" json:"project_id"`
	UserID        int64  `gorm:"not null;index" json:"user_id"`
	ExternalJobID string `gorm:"column:external_job_id;type:text;not null;uniqueIndex" json:"external_job_id"`
	Status        string `gorm:"type:text;not null;index" json:"status"`

	ModelURL          string `gorm:"type:text" json:"model_url,omitempty"`
	PreviewURL        string `gorm:"type:text" json:"preview_url,omitempty"`
	ImageURL          string `gorm:"type:text" json:"image_url,omitempty"`
	ProductionProcess string `gorm:"type:text" json:"production_process,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ThreeDResult) TableName() string { return "three_d_result" }
