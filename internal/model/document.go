package model

import "time"

// Document is created only after its file was chunked and embedded
// successfully; ChunkCount records how many chunks the vector backend holds.
type Document struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	KBID        string    `gorm:"column:kb_id;size:64;not null;index" json:"kb_id"`
	Filename    string    `gorm:"size:256;not null" json:"filename"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}
