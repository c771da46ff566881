package repository

import (
	"context"
	"fmt"
	"time"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductFilter struct {
	Status    model.ProductStatus
	ChamberID *uuid.UUID
	SlotID    *uuid.UUID
	LotCode   string
	Limit     int
	Offset    int
}

type ProductRepository interface {
	Create(tx *gorm.DB, product *model.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindAll(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	Load(tx *gorm.DB, id uuid.UUID) (*model.Product, error)
	FindActiveBySlot(tx *gorm.DB, slotID uuid.UUID) (*model.Product, error)
	FindActiveBySlots(tx *gorm.DB, slotIDs []uuid.UUID) ([]model.Product, error)
	FindSplits(ctx context.Context, originID uuid.UUID) ([]model.Product, error)
	UpdateVersioned(tx *gorm.DB, product *model.Product, updatedBy string) error
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepository {
	return &productRepo{db}
}

func (r *productRepo) Create(tx *gorm.DB, product *model.Product) error {
	if product.Version == 0 {
		product.Version = 1
	}
	if err := tx.Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Preload("SeedType").First(&product, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *productRepo) FindAll(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	query := r.db.WithContext(ctx).Model(&model.Product{})
	if filter.Status != "" {
		query = query.Where("products.status = ?", filter.Status)
	}
	if filter.SlotID != nil {
		query = query.Where("products.slot_id = ?", *filter.SlotID)
	}
	if filter.ChamberID != nil {
		query = query.Joins("JOIN slots ON slots.id = products.slot_id").
			Where("slots.chamber_id = ?", *filter.ChamberID)
	}
	if filter.LotCode != "" {
		query = query.Where("products.lot_code = ?", filter.LotCode)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var products []model.Product
	if err := query.Order("products.entry_date DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Load reads a product inside the caller's transaction.
func (r *productRepo) Load(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := tx.First(&product, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *productRepo) FindActiveBySlot(tx *gorm.DB, slotID uuid.UUID) (*model.Product, error) {
	var product model.Product
	err := tx.Where("slot_id = ? AND status IN ?", slotID, model.ActiveStatuses).First(&product).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *productRepo) FindActiveBySlots(tx *gorm.DB, slotIDs []uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	if len(slotIDs) == 0 {
		return products, nil
	}
	err := tx.Where("slot_id IN ? AND status IN ?", slotIDs, model.ActiveStatuses).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find slot occupants: %w", err)
	}
	return products, nil
}

func (r *productRepo) FindSplits(ctx context.Context, originID uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("tracking_origin_product_id = ?", originID).
		Order("entry_date ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find split products: %w", err)
	}
	return products, nil
}

// UpdateVersioned writes the mutable product columns only if the stored
// version still equals product.Version, then bumps product.Version.
func (r *productRepo) UpdateVersioned(tx *gorm.DB, product *model.Product, updatedBy string) error {
	now := time.Now().UTC()
	result := tx.Model(&model.Product{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(map[string]interface{}{
			"quantity":         product.Quantity,
			"total_weight":     product.TotalWeight,
			"status":           product.Status,
			"slot_id":          product.SlotID,
			"last_movement_at": product.LastMovementAt,
			"version":          product.Version + 1,
			"updated_by":       updatedBy,
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	product.Version++
	product.UpdatedBy = updatedBy
	product.UpdatedAt = now
	return nil
}
