package models

import "time"

// The CRM records a conversation can be about. Their CRUD lives in a
// separate subsystem; the chat core only resolves them as subjects.

type Client struct {
	BaseModel
	Name   string `gorm:"not null"`
	Email  string `gorm:"index"`
	Phone  string
	UserID *string `gorm:"index"` // portal account, when the client has one
}

type Lead struct {
	BaseModel
	Name   string `gorm:"not null"`
	Email  string `gorm:"index"`
	Phone  string
	Source string
	UserID *string `gorm:"index"`
}

// GuestSession identifies an anonymous visitor chatting through the public
// widget before any CRM record exists for them.
type GuestSession struct {
	BaseModel
	VisitorKey string `gorm:"uniqueIndex;not null"`
	UserAgent  string
	LastSeenAt time.Time
}
