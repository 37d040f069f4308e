package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByKBID(kbID string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Where("kb_id = ?", kbID).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) GetByIDAndKBID(docID, kbID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND kb_id = ?", docID, kbID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) DeleteByIDAndKBID(docID, kbID string) error {
	if err := r.db.Where("id = ? AND kb_id = ?", docID, kbID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
