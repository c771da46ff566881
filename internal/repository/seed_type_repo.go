package repository

import (
	"context"
	"fmt"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedTypeRepository is the read side of the seed-type directory plus the
// minimal writes needed to maintain it.
type SeedTypeRepository interface {
	Create(ctx context.Context, seedType *model.SeedType) error
	FindAll(ctx context.Context) ([]model.SeedType, error)
	Load(tx *gorm.DB, id uuid.UUID) (*model.SeedType, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool, updatedBy string) error
}

type seedTypeRepo struct {
	db *gorm.DB
}

func NewSeedTypeRepo(db *gorm.DB) SeedTypeRepository {
	return &seedTypeRepo{db}
}

func (r *seedTypeRepo) Create(ctx context.Context, seedType *model.SeedType) error {
	if err := r.db.WithContext(ctx).Create(seedType).Error; err != nil {
		return fmt.Errorf("failed to create seed type: %w", err)
	}
	return nil
}

func (r *seedTypeRepo) FindAll(ctx context.Context) ([]model.SeedType, error) {
	var seedTypes []model.SeedType
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&seedTypes).Error; err != nil {
		return nil, fmt.Errorf("failed to list seed types: %w", err)
	}
	return seedTypes, nil
}

func (r *seedTypeRepo) Load(tx *gorm.DB, id uuid.UUID) (*model.SeedType, error) {
	var seedType model.SeedType
	if err := tx.First(&seedType, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &seedType, nil
}

func (r *seedTypeRepo) SetActive(ctx context.Context, id uuid.UUID, active bool, updatedBy string) error {
	result := r.db.WithContext(ctx).Model(&model.SeedType{}).Where("id = ?", id).Updates(map[string]interface{}{
		"active":     active,
		"updated_by": updatedBy,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update seed type: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
