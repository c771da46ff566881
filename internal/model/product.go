package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type ProductStatus string

const (
	StatusAwaitingPlacement  ProductStatus = "AWAITING_PLACEMENT"
	StatusPlaced             ProductStatus = "PLACED"
	StatusAwaitingWithdrawal ProductStatus = "AWAITING_WITHDRAWAL"
	StatusWithdrawn          ProductStatus = "WITHDRAWN"
	StatusRemoved            ProductStatus = "REMOVED"
)

// ActiveStatuses are the states in which a product holds its slot.
var ActiveStatuses = []ProductStatus{StatusPlaced, StatusAwaitingWithdrawal}

func (s ProductStatus) IsActive() bool {
	return s == StatusPlaced || s == StatusAwaitingWithdrawal
}

func (s ProductStatus) IsTerminal() bool {
	return s == StatusWithdrawn || s == StatusRemoved
}

// Tracking links a product created by a partial move back to its origin lot.
type Tracking struct {
	OriginProductID *uuid.UUID `gorm:"type:uuid;index" json:"origin_product_id,omitempty"`
	SplitQuantity   int        `gorm:"not null;default:0" json:"split_quantity,omitempty"`
}

// Product is one seed lot (or a split part of one) under allocation control.
type Product struct {
	BaseModel
	LotCode        string        `gorm:"type:varchar(64);not null;index" json:"lot_code" validate:"required,max=64"`
	SeedTypeID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"seed_type_id"`
	SeedType       *SeedType     `gorm:"foreignKey:SeedTypeID" json:"seed_type,omitempty"`
	Quantity       int           `gorm:"not null" json:"quantity"`
	WeightPerUnit  float64       `gorm:"not null" json:"weight_per_unit"` // kg
	TotalWeight    float64       `gorm:"not null" json:"total_weight"`    // kg, Quantity × WeightPerUnit
	Status         ProductStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	SlotID         *uuid.UUID    `gorm:"type:uuid;index" json:"slot_id,omitempty"`
	ClientID       *uuid.UUID    `gorm:"type:uuid;index" json:"client_id,omitempty"`
	BatchID        *string       `gorm:"type:varchar(64);index" json:"batch_id,omitempty"`
	EntryDate      time.Time     `gorm:"not null" json:"entry_date"`
	ExpirationDate *time.Time    `json:"expiration_date,omitempty"`
	Version        int64         `gorm:"not null;default:1" json:"version"`
	LastMovementAt *time.Time    `json:"last_movement_at,omitempty"`
	Tracking       Tracking      `gorm:"embedded;embeddedPrefix:tracking_" json:"tracking"`
}

// RoundWeight rounds kilograms to grams so repeated splits do not drift.
func RoundWeight(kg float64) float64 {
	return math.Round(kg*1000) / 1000
}

// ComputeWeight returns quantity × weightPerUnit in kg.
func ComputeWeight(quantity int, weightPerUnit float64) float64 {
	return RoundWeight(float64(quantity) * weightPerUnit)
}

// SetQuantity updates the quantity and recomputes the total weight.
func (p *Product) SetQuantity(q int) {
	p.Quantity = q
	p.TotalWeight = ComputeWeight(q, p.WeightPerUnit)
}

// IsExpired reports whether the lot is past its expiration date at t.
func (p *Product) IsExpired(t time.Time) bool {
	return p.ExpirationDate != nil && t.After(*p.ExpirationDate)
}
