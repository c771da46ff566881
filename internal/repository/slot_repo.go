package repository

import (
	"context"
	"fmt"
	"time"

	"go-seedvault/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SlotRepository interface {
	Create(tx *gorm.DB, slot *model.Slot) error
	CreateBatch(tx *gorm.DB, slots []model.Slot) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	Load(tx *gorm.DB, id uuid.UUID) (*model.Slot, error)
	FindByChamber(tx *gorm.DB, chamberID uuid.UUID) ([]model.Slot, error)
	FindAlternatives(tx *gorm.DB, chamberID, excludeID uuid.UUID, minCapacity float64, limit int) ([]model.Slot, error)

	// Occupy marks a free slot as occupied. It matches only when the slot is
	// still unoccupied at the version that was read.
	Occupy(tx *gorm.DB, slot *model.Slot, weight float64) error
	Release(tx *gorm.DB, slot *model.Slot) error
	SetWeight(tx *gorm.DB, slot *model.Slot, weight float64) error
}

type slotRepo struct {
	db *gorm.DB
}

func NewSlotRepo(db *gorm.DB) SlotRepository {
	return &slotRepo{db}
}

func (r *slotRepo) Create(tx *gorm.DB, slot *model.Slot) error {
	if slot.Version == 0 {
		slot.Version = 1
	}
	if err := tx.Create(slot).Error; err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *slotRepo) CreateBatch(tx *gorm.DB, slots []model.Slot) error {
	for i := range slots {
		if slots[i].Version == 0 {
			slots[i].Version = 1
		}
	}
	if err := tx.CreateInBatches(slots, 200).Error; err != nil {
		return fmt.Errorf("failed to create slots: %w", err)
	}
	return nil
}

func (r *slotRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	return r.Load(r.db.WithContext(ctx), id)
}

func (r *slotRepo) Load(tx *gorm.DB, id uuid.UUID) (*model.Slot, error) {
	var slot model.Slot
	if err := tx.First(&slot, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

func (r *slotRepo) FindByChamber(tx *gorm.DB, chamberID uuid.UUID) ([]model.Slot, error) {
	var slots []model.Slot
	err := tx.Where("chamber_id = ?", chamberID).
		Order("block_no ASC, side_no ASC, row_no ASC, level_no ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chamber slots: %w", err)
	}
	return slots, nil
}

// FindAlternatives returns free slots of the chamber able to hold minCapacity,
// lowest level first (easiest physical access), then largest capacity.
func (r *slotRepo) FindAlternatives(tx *gorm.DB, chamberID, excludeID uuid.UUID, minCapacity float64, limit int) ([]model.Slot, error) {
	var slots []model.Slot
	if limit <= 0 {
		return slots, nil
	}
	err := tx.Where("chamber_id = ? AND id <> ? AND occupied = ? AND max_capacity >= ?", chamberID, excludeID, false, minCapacity).
		Order("level_no ASC, max_capacity DESC, block_no ASC, side_no ASC, row_no ASC").
		Limit(limit).
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find alternative slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepo) Occupy(tx *gorm.DB, slot *model.Slot, weight float64) error {
	return r.guardedUpdate(tx.Where("occupied = ?", false), slot, map[string]interface{}{
		"occupied":       true,
		"current_weight": model.RoundWeight(weight),
	})
}

func (r *slotRepo) Release(tx *gorm.DB, slot *model.Slot) error {
	return r.guardedUpdate(tx, slot, map[string]interface{}{
		"occupied":       false,
		"current_weight": 0.0,
	})
}

func (r *slotRepo) SetWeight(tx *gorm.DB, slot *model.Slot, weight float64) error {
	return r.guardedUpdate(tx, slot, map[string]interface{}{
		"current_weight": model.RoundWeight(weight),
	})
}

func (r *slotRepo) guardedUpdate(tx *gorm.DB, slot *model.Slot, values map[string]interface{}) error {
	values["version"] = slot.Version + 1
	values["updated_at"] = time.Now().UTC()
	result := tx.Model(&model.Slot{}).
		Where("id = ? AND version = ?", slot.ID, slot.Version).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	slot.Version++
	if v, ok := values["occupied"].(bool); ok {
		slot.Occupied = v
	}
	if v, ok := values["current_weight"].(float64); ok {
		slot.CurrentWeight = v
	}
	return nil
}
