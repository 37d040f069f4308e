package model

import "time"

// User is an anonymous visitor identity. There is no credential pair; the id
// is minted on first contact and carried in the visitor token afterwards.
type User struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}
