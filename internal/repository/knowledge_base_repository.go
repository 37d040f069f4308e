package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jeankeim/voice-brainstorm/internal/model"
)

type KnowledgeBaseRepository struct {
	db *gorm.DB
}

func NewKnowledgeBaseRepository(db *gorm.DB) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: db}
}

func (r *KnowledgeBaseRepository) Create(kb *model.KnowledgeBase) error {
	if err := r.db.Create(kb).Error; err != nil {
		return fmt.Errorf("create knowledge base failed: %w", err)
	}
	return nil
}

func (r *KnowledgeBaseRepository) ListByUserID(userID string) ([]model.KnowledgeBase, error) {
	var kbs []model.KnowledgeBase
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&kbs).Error; err != nil {
		return nil, fmt.Errorf("list knowledge bases failed: %w", err)
	}
	return kbs, nil
}

func (r *KnowledgeBaseRepository) GetByIDAndUserID(kbID, userID string) (*model.KnowledgeBase, error) {
	var kb model.KnowledgeBase
	if err := r.db.Where("id = ? AND user_id = ?", kbID, userID).First(&kb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get knowledge base failed: %w", err)
	}
	return &kb, nil
}

func (r *KnowledgeBaseRepository) UpdateByIDAndUserID(kbID, userID, name, description string) error {
	err := r.db.Model(&model.KnowledgeBase{}).
		Where("id = ? AND user_id = ?", kbID, userID).
		Updates(map[string]any{"name": name, "description": description}).Error
	if err != nil {
		return fmt.Errorf("update knowledge base failed: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID removes the knowledge base row and its document rows.
// Chunk cleanup in the vector store is the caller's responsibility.
func (r *KnowledgeBaseRepository) DeleteByIDAndUserID(kbID, userID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kb_id = ?", kbID).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("delete knowledge base documents failed: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", kbID, userID).Delete(&model.KnowledgeBase{}).Error; err != nil {
			return fmt.Errorf("delete knowledge base failed: %w", err)
		}
		return nil
	})
}
