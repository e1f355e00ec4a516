package models

import (
	"time"

	"gorm.io/datatypes"
)

type Notification struct {
	BaseModel
	UserID  string `gorm:"not null;index"`
	Type    string `gorm:"not null"` // "new_message", "conversation_assigned", ...
	Title   string `gorm:"not null"`
	Message string
	Data    datatypes.JSON `gorm:"type:jsonb"` // {"conversation_id": "...", "message_id": "..."}
	IsRead  bool           `gorm:"default:false"`
	ReadAt  *time.Time
}
