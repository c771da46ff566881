package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Coordinates address a slot inside its chamber.
type Coordinates struct {
	Block int `gorm:"column:block_no;not null;uniqueIndex:idx_slot_coordinates,priority:2" json:"block" validate:"gte=1"`
	Side  int `gorm:"column:side_no;not null;uniqueIndex:idx_slot_coordinates,priority:3" json:"side" validate:"gte=1"`
	Row   int `gorm:"column:row_no;not null;uniqueIndex:idx_slot_coordinates,priority:4" json:"row" validate:"gte=1"`
	Level int `gorm:"column:level_no;not null;uniqueIndex:idx_slot_coordinates,priority:5;index" json:"level" validate:"gte=1"`
}

// Distance is the Manhattan distance over all four axes.
func (c Coordinates) Distance(o Coordinates) int {
	return abs(c.Block-o.Block) + abs(c.Side-o.Side) + abs(c.Row-o.Row) + abs(c.Level-o.Level)
}

func (c Coordinates) String() string {
	return fmt.Sprintf("B%d-S%d-R%d-L%d", c.Block, c.Side, c.Row, c.Level)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Slot is one storage position. Occupied is true iff exactly one active
// product references it; CurrentWeight never exceeds MaxCapacity.
type Slot struct {
	BaseModel
	ChamberID     uuid.UUID   `gorm:"type:uuid;not null;index;uniqueIndex:idx_slot_coordinates,priority:1" json:"chamber_id"`
	Chamber       *Chamber    `gorm:"foreignKey:ChamberID" json:"chamber,omitempty"`
	Coordinates   Coordinates `gorm:"embedded" json:"coordinates"`
	MaxCapacity   float64     `gorm:"not null" json:"max_capacity"`             // kg
	CurrentWeight float64     `gorm:"not null;default:0" json:"current_weight"` // kg
	Occupied      bool        `gorm:"not null;default:false;index" json:"occupied"`
	Version       int64       `gorm:"not null;default:1" json:"version"`
}

// Available is the remaining capacity in kg.
func (s *Slot) Available() float64 {
	return RoundWeight(s.MaxCapacity - s.CurrentWeight)
}
