package projects

import "time"

// ChatTurn is one message of the conversation attached to a project. The
// prompt enhancer reads the most recent turns as history.
type ChatTurn struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID int64     `gorm:"not null;index:idx_chat_turn_project_created,priority:1" json:"project_id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Role      string    `gorm:"type:text;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_turn_project_created,priority:2" json:"created_at"`
}

func (ChatTurn) TableName() string { return "chat_turn" }
