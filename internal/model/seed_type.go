package model

// SeedType is an entry of the seed-type directory consulted at placement time.
type SeedType struct {
	BaseModel
	Code        string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code" validate:"required,max=50"`
	Name        string `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Species     string `gorm:"type:varchar(255)" json:"species,omitempty"`
	Active      bool   `gorm:"not null" json:"active"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}
