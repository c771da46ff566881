package model

// Privilege represents a permission that can be assigned to users
type Privilege struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // e.g., "product:place"
	Name string `gorm:"type:varchar(100)" json:"name"`                     // e.g., "Place Product"
}

// Withdrawal capabilities. They are checked by the allocation engine itself,
// the remaining codes only by HTTP middleware.
const (
	PrivWithdrawalRequest = "withdrawal:request"
	PrivWithdrawalConfirm = "withdrawal:confirm"
)

// Default privileges for the system
var DefaultPrivileges = []Privilege{
	// User management
	{Code: "user:view", Name: "View User"},
	{Code: "user:create", Name: "Create User"},
	{Code: "user:update_privilege", Name: "Update User Privileges"},
	// Chamber & slot layout
	{Code: "chamber:view", Name: "View Chamber"},
	{Code: "chamber:manage", Name: "Manage Chamber"},
	{Code: "seedtype:manage", Name: "Manage Seed Type"},
	// Product lifecycle
	{Code: "product:view", Name: "View Product"},
	{Code: "product:create", Name: "Create Product"},
	{Code: "product:place", Name: "Place Product"},
	{Code: "product:move", Name: "Move Product"},
	{Code: "product:exit", Name: "Exit Product Stock"},
	{Code: "product:adjust", Name: "Add Product Stock"},
	{Code: "product:remove", Name: "Remove Product"},
	// Movement ledger
	{Code: "movement:view", Name: "View Movement"},
	{Code: "movement:create", Name: "Record Manual Movement"},
	// Withdrawal workflow
	{Code: PrivWithdrawalRequest, Name: "Request Withdrawal"},
	{Code: PrivWithdrawalConfirm, Name: "Confirm Withdrawal"},
}
