package model

import "time"

// KnowledgeBase is owned by exactly one user. Deleting it cascades to its
// documents and chunks in both the relational store and the vector backend.
type KnowledgeBase struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	UserID      string    `gorm:"size:64;not null;index" json:"user_id"`
	Name        string    `gorm:"size:256;not null" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
