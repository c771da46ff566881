package model

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalKind string

const (
	WithdrawalTotal   WithdrawalKind = "TOTAL"
	WithdrawalPartial WithdrawalKind = "PARTIAL"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalConfirmed WithdrawalStatus = "CONFIRMED"
	WithdrawalCanceled  WithdrawalStatus = "CANCELED"
)

// WithdrawalRequest is the first half of the two-actor withdrawal workflow.
// While Pending, the referenced product is AWAITING_WITHDRAWAL.
type WithdrawalRequest struct {
	BaseModel
	ProductID         uuid.UUID        `gorm:"type:uuid;not null;index" json:"product_id"`
	Product           *Product         `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	RequesterID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"requester_id"`
	Kind              WithdrawalKind   `gorm:"type:varchar(10);not null" json:"kind"`
	RequestedQuantity *int             `json:"requested_quantity,omitempty"`
	Status            WithdrawalStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ConfirmedBy       *uuid.UUID       `gorm:"type:uuid" json:"confirmed_by,omitempty"`
	CanceledBy        *uuid.UUID       `gorm:"type:uuid" json:"canceled_by,omitempty"`
	RequestedAt       time.Time        `gorm:"not null" json:"requested_at"`
	ResolvedAt        *time.Time       `json:"resolved_at,omitempty"`
	Reason            string           `gorm:"type:varchar(255)" json:"reason,omitempty"`
	Notes             string           `gorm:"type:text" json:"notes,omitempty"`
}

// Quantity returns the number of units this request withdraws from a lot
// currently holding available units.
func (w *WithdrawalRequest) Quantity(available int) int {
	if w.Kind == WithdrawalPartial && w.RequestedQuantity != nil {
		return *w.RequestedQuantity
	}
	return available
}
