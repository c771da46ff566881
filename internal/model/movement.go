package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MovementType string

const (
	MovementEntry      MovementType = "ENTRY"
	MovementTransfer   MovementType = "TRANSFER"
	MovementExit       MovementType = "EXIT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementWithdrawal MovementType = "WITHDRAWAL"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementEntry, MovementTransfer, MovementExit, MovementAdjustment, MovementWithdrawal:
		return true
	}
	return false
}

// ErrMovementImmutable is returned by the gorm hooks when anything tries to
// update or delete a ledger row.
var ErrMovementImmutable = errors.New("movement entries are immutable")

// Movement is an append-only ledger entry. It has no UpdatedAt and no soft
// delete, so it does not embed BaseModel.
type Movement struct {
	ID         uuid.UUID    `gorm:"type:uuid;primary_key;" json:"id"`
	Type       MovementType `gorm:"type:varchar(20);not null;index" json:"type"`
	ProductID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"product_id"`
	ActorID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"actor_id"`
	ActorName  string       `gorm:"type:varchar(255)" json:"actor_name"`
	FromSlotID *uuid.UUID   `gorm:"type:uuid;index" json:"from_slot_id,omitempty"`
	ToSlotID   *uuid.UUID   `gorm:"type:uuid;index" json:"to_slot_id,omitempty"`
	Quantity   int          `gorm:"not null" json:"quantity"`
	Weight     float64      `gorm:"not null" json:"weight"` // kg
	Reason     string       `gorm:"type:varchar(255)" json:"reason,omitempty"`
	Notes      string       `gorm:"type:text" json:"notes,omitempty"`
	OccurredAt time.Time    `gorm:"not null;index" json:"occurred_at"`
	Automatic  bool         `gorm:"not null" json:"automatic"`
	Verified   bool         `gorm:"not null" json:"verified"`
	RecordedAt time.Time    `gorm:"autoCreateTime" json:"recorded_at"`
}

func (m *Movement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *Movement) BeforeUpdate(tx *gorm.DB) error {
	return ErrMovementImmutable
}

func (m *Movement) BeforeDelete(tx *gorm.DB) error {
	return ErrMovementImmutable
}
