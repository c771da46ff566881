package repository

import (
	"context"
	"fmt"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChamberRepository interface {
	Create(ctx context.Context, chamber *model.Chamber) error
	FindAll(ctx context.Context) ([]model.Chamber, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Chamber, error)
	FindByCode(ctx context.Context, code string) (*model.Chamber, error)
	Load(tx *gorm.DB, id uuid.UUID) (*model.Chamber, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChamberStatus, updatedBy string) error
}

type chamberRepo struct {
	db *gorm.DB
}

func NewChamberRepo(db *gorm.DB) ChamberRepository {
	return &chamberRepo{db}
}

func (r *chamberRepo) Create(ctx context.Context, chamber *model.Chamber) error {
	if err := r.db.WithContext(ctx).Create(chamber).Error; err != nil {
		return fmt.Errorf("failed to create chamber: %w", err)
	}
	return nil
}

func (r *chamberRepo) FindAll(ctx context.Context) ([]model.Chamber, error) {
	var chambers []model.Chamber
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&chambers).Error; err != nil {
		return nil, fmt.Errorf("failed to list chambers: %w", err)
	}
	return chambers, nil
}

func (r *chamberRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Chamber, error) {
	return r.Load(r.db.WithContext(ctx), id)
}

func (r *chamberRepo) FindByCode(ctx context.Context, code string) (*model.Chamber, error) {
	var chamber model.Chamber
	if err := r.db.WithContext(ctx).First(&chamber, "code = ?", code).Error; err != nil {
		return nil, notFound(err)
	}
	return &chamber, nil
}

func (r *chamberRepo) Load(tx *gorm.DB, id uuid.UUID) (*model.Chamber, error) {
	var chamber model.Chamber
	if err := tx.First(&chamber, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &chamber, nil
}

func (r *chamberRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChamberStatus, updatedBy string) error {
	result := r.db.WithContext(ctx).Model(&model.Chamber{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_by": updatedBy,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update chamber status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
