package repository

import (
	"context"
	"fmt"
	"time"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MovementFilter struct {
	ProductID *uuid.UUID
	SlotID    *uuid.UUID
	Type      model.MovementType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// MovementRepository is append-only and has no update or delete method.
type MovementRepository interface {
	Create(tx *gorm.DB, movement *model.Movement) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Movement, error)
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]model.Movement, error)
	FindAll(ctx context.Context, filter MovementFilter) ([]model.Movement, error)
	CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

type movementRepo struct {
	db *gorm.DB
}

func NewMovementRepo(db *gorm.DB) MovementRepository {
	return &movementRepo{db}
}

func (r *movementRepo) Create(tx *gorm.DB, movement *model.Movement) error {
	if err := tx.Create(movement).Error; err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func (r *movementRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Movement, error) {
	var movement model.Movement
	if err := r.db.WithContext(ctx).First(&movement, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &movement, nil
}

// FindByProduct returns the causal history of a product, ordered by the time
// the movement happened rather than the time it was recorded.
func (r *movementRepo) FindByProduct(ctx context.Context, productID uuid.UUID) ([]model.Movement, error) {
	var movements []model.Movement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("occurred_at ASC, recorded_at ASC").
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load product history: %w", err)
	}
	return movements, nil
}

func (r *movementRepo) FindAll(ctx context.Context, filter MovementFilter) ([]model.Movement, error) {
	query := r.db.WithContext(ctx).Model(&model.Movement{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.SlotID != nil {
		query = query.Where("(from_slot_id = ? OR to_slot_id = ?)", *filter.SlotID, *filter.SlotID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var movements []model.Movement
	if err := query.Order("occurred_at DESC, recorded_at DESC").Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return movements, nil
}

func (r *movementRepo) CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Movement{}).Where("product_id = ?", productID).Count(&count).Error
	return count, err
}
