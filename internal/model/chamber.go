package model

type ChamberStatus string

const (
	ChamberActive      ChamberStatus = "ACTIVE"
	ChamberInactive    ChamberStatus = "INACTIVE"
	ChamberMaintenance ChamberStatus = "MAINTENANCE"
)

// Chamber is a refrigerated room holding a grid of slots.
type Chamber struct {
	BaseModel
	Code        string        `gorm:"type:varchar(50);uniqueIndex;not null" json:"code" validate:"required,max=50"`
	Name        string        `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Status      ChamberStatus `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE MAINTENANCE"`
	Temperature *float64      `json:"temperature,omitempty"` // target °C
	Humidity    *float64      `json:"humidity,omitempty"`    // target %RH
	Notes       string        `gorm:"type:text" json:"notes,omitempty"`

	Slots []Slot `json:"slots,omitempty"`
}

func (c *Chamber) IsActive() bool {
	return c.Status == ChamberActive
}
