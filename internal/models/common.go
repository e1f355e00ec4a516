package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BaseModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// BeforeCreate fills the id so the model works the same across dialects.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

type BaseModelWithDeleted struct {
	BaseModel
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Actor is the authenticated identity threaded through every core call.
// There is no ambient "current user": handlers build an Actor from the JWT
// claims and pass it down explicitly.
type Actor struct {
	ID   string
	Role UserRole
}

// IsStaff reports whether the actor is on the staff side of the CRM.
func (a Actor) IsStaff() bool {
	return a.Role == UserRoleAdmin || a.Role == UserRoleAgent
}

// IsAdmin reports whether the actor holds the administrator role.
func (a Actor) IsAdmin() bool {
	return a.Role == UserRoleAdmin
}
